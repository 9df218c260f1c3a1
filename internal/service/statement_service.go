package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/export"
)

// Statement formats.
const (
	StatementFormatPDF = "pdf"
	StatementFormatCSV = "csv"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type settlementReader interface {
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SettlementDetail, error)
}

// StatementConfig brands rendered statements.
type StatementConfig struct {
	CompanyName string
	Currency    string
	Tax         TaxPolicy
}

// Statement is a rendered settlement document.
type Statement struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StatementService renders settlement statements as PDF or CSV.
type StatementService struct {
	settlements settlementReader
	csv         csvRenderer
	pdf         pdfRenderer
	cfg         StatementConfig
}

// NewStatementService constructs a StatementService.
func NewStatementService(settlements settlementReader, cfg StatementConfig, csv csvRenderer, pdf pdfRenderer) *StatementService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.Tax == (TaxPolicy{}) {
		cfg.Tax = DefaultTaxPolicy
	}
	return &StatementService{settlements: settlements, csv: csv, pdf: pdf, cfg: cfg}
}

// Render builds the statement of settlement id in the requested format.
func (s *StatementService) Render(ctx context.Context, actor *models.JWTClaims, id, format string) (*Statement, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = StatementFormatPDF
	}
	if format != StatementFormatPDF && format != StatementFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported statement format")
	}
	detail, err := s.settlements.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	dataset := s.dataset(detail)
	filename := fmt.Sprintf("settlement-%04d-%02d-%s.%s", detail.Year, detail.Month, shortID(detail.ID), format)

	if format == StatementFormatCSV {
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render statement")
		}
		return &Statement{Filename: filename, ContentType: "text/csv", Data: data}, nil
	}
	title := fmt.Sprintf("%s settlement statement %04d-%02d", s.cfg.CompanyName, detail.Year, detail.Month)
	data, err := s.pdf.Render(dataset, strings.TrimSpace(title))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render statement")
	}
	return &Statement{Filename: filename, ContentType: "application/pdf", Data: data}, nil
}

func (s *StatementService) dataset(detail *models.SettlementDetail) export.Dataset {
	headers := []string{"No", "Video", "Rate Source", "Base", "Adjusted", "Final"}
	rows := make([]map[string]string, 0, len(detail.Items))
	for _, item := range detail.Items {
		title := item.SubmissionID
		if item.VideoTitle != nil && *item.VideoTitle != "" {
			title = *item.VideoTitle
		}
		adjusted := "-"
		if item.AdjustedAmount != nil {
			adjusted = formatAmount(*item.AdjustedAmount)
		}
		rows = append(rows, map[string]string{
			"No":          strconv.Itoa(item.Position),
			"Video":       title,
			"Rate Source": string(item.RateSource),
			"Base":        formatAmount(item.BaseAmount),
			"Adjusted":    adjusted,
			"Final":       formatAmount(item.FinalAmount),
		})
	}
	tax := detail.Tax
	currency := s.cfg.Currency
	worker := detail.WorkerName
	if worker == "" {
		worker = detail.WorkerID
	}
	return export.Dataset{
		Headers: headers,
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "Worker", Value: worker},
			{Label: "Status", Value: string(detail.Status)},
			{Label: "Gross (" + currency + ")", Value: formatAmount(tax.Gross)},
			{Label: "Income tax " + formatBps(s.cfg.Tax.IncomeBps), Value: formatAmount(tax.IncomeTax)},
			{Label: "Local tax " + formatBps(s.cfg.Tax.LocalBps), Value: formatAmount(tax.LocalTax)},
			{Label: "Total tax", Value: formatAmount(tax.TotalTax)},
			{Label: "Net payable (" + currency + ")", Value: formatAmount(tax.NetAmount)},
		},
	}
}

// formatAmount renders an integer amount with thousands separators.
func formatAmount(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

func formatBps(bps int64) string {
	return fmt.Sprintf("(%d.%02d%%)", bps/100, bps%100)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
