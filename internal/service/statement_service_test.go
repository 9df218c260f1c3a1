package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/export"
)

type stubSettlementReader struct {
	detail *models.SettlementDetail
	err    error
}

func (s stubSettlementReader) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SettlementDetail, error) {
	return s.detail, s.err
}

type recordingPDF struct {
	title   string
	dataset export.Dataset
}

func (r *recordingPDF) Render(data export.Dataset, title string) ([]byte, error) {
	r.title = title
	r.dataset = data
	return []byte("%PDF-stub"), nil
}

func statementDetail() *models.SettlementDetail {
	title := "Spring lookbook"
	return &models.SettlementDetail{
		Settlement: models.Settlement{
			ID:          "5f0c2a9e-1111-2222-3333-444455556666",
			WorkerID:    "worker-1",
			Year:        2026,
			Month:       1,
			Status:      models.SettlementStatusConfirmed,
			TotalAmount: 912229,
		},
		WorkerName: "Worker One",
		Items: []models.SettlementItem{
			{Position: 1, SubmissionID: "sub-1", VideoTitle: &title, BaseAmount: 862229, FinalAmount: 862229, RateSource: models.RateSourceWorker},
			{Position: 2, SubmissionID: "sub-2", BaseAmount: 30000, AdjustedAmount: int64Ptr(50000), FinalAmount: 50000, RateSource: models.RateSourceGrade},
		},
		Tax: DefaultTaxPolicy.Calculate(912229),
	}
}

func TestStatementRenderCSV(t *testing.T) {
	svc := NewStatementService(stubSettlementReader{detail: statementDetail()}, StatementConfig{CompanyName: "ReelHub", Currency: "KRW"}, nil, nil)

	statement, err := svc.Render(context.Background(), claimsFor("admin-1", models.RoleAdmin), "any", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "settlement-2026-01-5f0c2a9e.csv", statement.Filename)
	assert.Equal(t, "text/csv", statement.ContentType)

	body := string(statement.Data)
	assert.Contains(t, body, "No,Video,Rate Source,Base,Adjusted,Final\n")
	assert.Contains(t, body, "1,Spring lookbook,WORKER,\"862,229\",-,\"862,229\"\n")
	assert.Contains(t, body, "2,sub-2,GRADE,\"30,000\",\"50,000\",\"50,000\"\n")
	assert.Contains(t, body, "Income tax (3.00%),,,,,\"27,367\"\n")
	assert.Contains(t, body, "Local tax (0.30%),,,,,\"2,737\"\n")
	assert.Contains(t, body, "Net payable (KRW),,,,,\"882,125\"\n")
}

func TestStatementRenderPDFDefault(t *testing.T) {
	pdf := &recordingPDF{}
	svc := NewStatementService(stubSettlementReader{detail: statementDetail()}, StatementConfig{CompanyName: "ReelHub", Currency: "KRW"}, nil, pdf)

	statement, err := svc.Render(context.Background(), claimsFor("admin-1", models.RoleAdmin), "any", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", statement.ContentType)
	assert.Equal(t, "settlement-2026-01-5f0c2a9e.pdf", statement.Filename)
	assert.Equal(t, "ReelHub settlement statement 2026-01", pdf.title)
	require.Len(t, pdf.dataset.Summary, 7)
	assert.Equal(t, export.SummaryLine{Label: "Worker", Value: "Worker One"}, pdf.dataset.Summary[0])
	assert.Equal(t, "882,125", pdf.dataset.Summary[6].Value)
}

func TestStatementRenderRejectsUnknownFormat(t *testing.T) {
	svc := NewStatementService(stubSettlementReader{detail: statementDetail()}, StatementConfig{}, nil, nil)

	_, err := svc.Render(context.Background(), claimsFor("admin-1", models.RoleAdmin), "any", "xlsx")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStatementRenderPropagatesAccessErrors(t *testing.T) {
	svc := NewStatementService(stubSettlementReader{err: appErrors.ErrForbidden}, StatementConfig{}, nil, nil)

	_, err := svc.Render(context.Background(), claimsFor("worker-2", models.RoleWorker), "any", "pdf")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	svc = NewStatementService(stubSettlementReader{err: errors.New("boom")}, StatementConfig{}, nil, nil)
	_, err = svc.Render(context.Background(), claimsFor("admin-1", models.RoleAdmin), "any", "pdf")
	require.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		882125:   "882,125",
		1234567:  "1,234,567",
		-50000:   "-50,000",
		-1234567: "-1,234,567",
	}
	for input, want := range cases {
		assert.Equal(t, want, formatAmount(input), "amount %d", input)
	}
}
