package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
)

var january2026 = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

func newSettlementService(db *memDB) *SettlementService {
	return NewSettlementService(SettlementServiceDeps{
		Tx:          db,
		Settlements: memSettlements{db},
		Work:        memSubmissions{db},
		Workers:     memUsers{db},
	})
}

func itemsOf(db *memDB, settlementID string) []models.SettlementItem {
	items, _ := memSettlements{db}.ListItems(context.Background(), nil, settlementID)
	return items
}

func TestSettlementReviewToPayoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newSubmissionFixture(t)
	f.db.users["worker-1"] = models.User{ID: "worker-1", FullName: "Worker One", Role: models.RoleWorker, BaseRate: int64Ptr(50000), Active: true}

	submission := f.create(t)
	_, err := f.svc.CreateFeedback(ctx, f.admin, submission.ID, dto.CreateFeedbackRequest{Content: "colour grade looks off"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusInReview, f.status(t, submission.ID))
	_, err = f.svc.Approve(ctx, f.admin, submission.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.VideoVisibilityPublic, f.visibility(t, submission.ID))

	// approval happened in January 2026
	approved := f.db.submissions[submission.ID]
	approved.UpdatedAt = january2026
	f.db.submissions[submission.ID] = approved

	settlements := newSettlementService(f.db)
	summaries, err := settlements.Generate(ctx, f.admin, 2026, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "worker-1", summaries[0].WorkerID)
	assert.Equal(t, int64(50000), summaries[0].TotalAmount)
	assert.Equal(t, 1, summaries[0].ItemCount)

	items := itemsOf(f.db, summaries[0].SettlementID)
	require.Len(t, items, 1)
	assert.Equal(t, int64(50000), items[0].FinalAmount)
	assert.Equal(t, models.RateSourceWorker, items[0].RateSource)
	assert.Equal(t, submission.ID, items[0].SubmissionID)
}

func TestSettlementGenerateResolvesRatesPerItem(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	grade := "grade-a"
	db.grades[grade] = 30000
	db.addWorker("w-base", "Base", int64Ptr(45000), &grade)
	db.addWorker("w-grade", "Grade", nil, &grade)
	db.addWorker("w-none", "None", nil, nil)
	db.addApproved("s1", "w-base", "Custom", int64Ptr(80000), january2026)
	db.addApproved("s2", "w-base", "Plain", nil, january2026.Add(time.Hour))
	db.addApproved("s3", "w-grade", "Graded", nil, january2026)
	db.addApproved("s4", "w-none", "Unpriced", nil, january2026)
	db.addApproved("s5", "w-base", "February", nil, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))

	svc := newSettlementService(db)
	summaries, err := svc.Generate(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	byWorker := map[string]models.SettlementSummary{}
	for _, summary := range summaries {
		byWorker[summary.WorkerID] = summary
	}
	assert.Equal(t, int64(125000), byWorker["w-base"].TotalAmount)
	assert.Equal(t, 2, byWorker["w-base"].ItemCount)
	assert.Equal(t, int64(30000), byWorker["w-grade"].TotalAmount)
	assert.Equal(t, int64(0), byWorker["w-none"].TotalAmount)

	items := itemsOf(db, byWorker["w-base"].SettlementID)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Position)
	assert.Equal(t, models.RateSourceVideo, items[0].RateSource)
	assert.Equal(t, int64(80000), items[0].FinalAmount)
	assert.Equal(t, 2, items[1].Position)
	assert.Equal(t, models.RateSourceWorker, items[1].RateSource)

	graded := itemsOf(db, byWorker["w-grade"].SettlementID)
	require.Len(t, graded, 1)
	assert.Equal(t, models.RateSourceGrade, graded[0].RateSource)
	unpriced := itemsOf(db, byWorker["w-none"].SettlementID)
	require.Len(t, unpriced, 1)
	assert.Equal(t, models.RateSourceNone, unpriced[0].RateSource)
}

func TestSettlementGenerateTwiceFails(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "Clip", nil, january2026)
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	_, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, admin, 2026, 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyGenerated))
	assert.Len(t, db.settlements, 1)
}

func TestSettlementGenerateEmptyPeriod(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	summaries, err := svc.Generate(ctx, admin, 2026, 3)
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)

	// nothing was written, so the period stays open
	_, err = svc.Generate(ctx, admin, 2026, 3)
	require.NoError(t, err)
}

func TestSettlementGenerateMissingWorkerRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "Clip", nil, january2026)
	db.addApproved("s2", "w-gone", "Orphan", nil, january2026)
	svc := newSettlementService(db)

	_, err := svc.Generate(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, db.settlements)
	assert.Empty(t, db.items)
}

func TestSettlementGenerateLockFailure(t *testing.T) {
	db := newMemDB()
	db.failLockPeriod = errors.New("lock timeout")
	svc := newSettlementService(db)

	_, err := svc.Generate(context.Background(), claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestSettlementGenerateValidatesPeriodAndRole(t *testing.T) {
	db := newMemDB()
	svc := newSettlementService(db)

	_, err := svc.Generate(context.Background(), claimsFor("admin-1", models.RoleAdmin), 2026, 13)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Generate(context.Background(), claimsFor("w1", models.RoleWorker), 2026, 1)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSettlementAdjustItem(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "One", nil, january2026)
	db.addApproved("s2", "w1", "Two", nil, january2026.Add(time.Minute))
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	summaries, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	settlementID := summaries[0].SettlementID
	items := itemsOf(db, settlementID)
	require.Len(t, items, 2)

	adjusted, err := svc.AdjustItem(ctx, admin, items[0].ID, int64Ptr(70000))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), adjusted.BaseAmount)
	assert.Equal(t, int64(70000), adjusted.FinalAmount)
	assert.Equal(t, int64(120000), db.settlements[settlementID].TotalAmount)

	restored, err := svc.AdjustItem(ctx, admin, items[0].ID, nil)
	require.NoError(t, err)
	assert.Nil(t, restored.AdjustedAmount)
	assert.Equal(t, int64(50000), restored.FinalAmount)
	assert.Equal(t, int64(100000), db.settlements[settlementID].TotalAmount)

	_, err = svc.AdjustItem(ctx, admin, items[0].ID, int64Ptr(-1))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Confirm(ctx, admin, settlementID)
	require.NoError(t, err)
	_, err = svc.AdjustItem(ctx, admin, items[1].ID, int64Ptr(1))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Equal(t, int64(100000), db.settlements[settlementID].TotalAmount)
	assert.Equal(t, int64(50000), db.items[items[1].ID].FinalAmount)
}

func TestSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "One", nil, january2026)
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)
	superadmin := claimsFor("root", models.RoleSuperAdmin)

	summaries, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	id := summaries[0].SettlementID

	_, err = svc.Complete(ctx, superadmin, id)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	confirmed, err := svc.Confirm(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)

	_, err = svc.Complete(ctx, admin, id)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	completed, err := svc.Complete(ctx, superadmin, id)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementStatusCompleted, completed.Status)

	_, err = svc.Confirm(ctx, admin, id)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestSettlementRegenerate(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "One", int64Ptr(50000), nil)
	db.addWorker("w2", "Two", int64Ptr(40000), nil)
	db.addWorker("w3", "Three", int64Ptr(30000), nil)
	db.addApproved("s1", "w1", "A", nil, january2026)
	db.addApproved("s2", "w1", "B", nil, january2026.Add(time.Minute))
	db.addApproved("s3", "w2", "C", nil, january2026)
	db.addApproved("s4", "w3", "D", nil, january2026)
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	summaries, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	byWorker := map[string]string{}
	for _, summary := range summaries {
		byWorker[summary.WorkerID] = summary.SettlementID
	}

	// w1 keeps a manual adjustment, w2 gets confirmed, w3 loses its only approval
	w1Items := itemsOf(db, byWorker["w1"])
	_, err = svc.AdjustItem(ctx, admin, w1Items[0].ID, int64Ptr(65000))
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, admin, byWorker["w2"])
	require.NoError(t, err)
	delete(db.submissions, "s4")

	// rates change and a late approval lands for a new worker
	db.users["w1"] = models.User{ID: "w1", FullName: "One", Role: models.RoleWorker, BaseRate: int64Ptr(55000), Active: true}
	db.users["w2"] = models.User{ID: "w2", FullName: "Two", Role: models.RoleWorker, BaseRate: int64Ptr(99000), Active: true}
	db.addWorker("w4", "Four", int64Ptr(20000), nil)
	db.addApproved("s5", "w4", "E", nil, january2026)

	report, err := svc.Regenerate(ctx, admin, 2026, 1)
	require.NoError(t, err)

	require.Len(t, report.Refreshed, 1)
	assert.Equal(t, "w1", report.Refreshed[0].WorkerID)
	assert.Equal(t, int64(65000+55000), report.Refreshed[0].TotalAmount)
	refreshed := itemsOf(db, byWorker["w1"])
	require.Len(t, refreshed, 2)
	require.NotNil(t, refreshed[0].AdjustedAmount)
	assert.Equal(t, int64(65000), *refreshed[0].AdjustedAmount)
	assert.Equal(t, int64(55000), refreshed[0].BaseAmount)
	assert.Equal(t, int64(55000), refreshed[1].FinalAmount)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "w2", report.Skipped[0].WorkerID)
	assert.Equal(t, int64(40000), db.settlements[byWorker["w2"]].TotalAmount)

	assert.Equal(t, []string{byWorker["w3"]}, report.Removed)
	assert.NotContains(t, db.settlements, byWorker["w3"])

	require.Len(t, report.Created, 1)
	assert.Equal(t, "w4", report.Created[0].WorkerID)
	assert.Equal(t, int64(20000), report.Created[0].TotalAmount)
}

func TestSettlementGetAppliesTaxAndScope(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker One", int64Ptr(912229), nil)
	db.addApproved("s1", "w1", "Clip", nil, january2026)
	svc := newSettlementService(db)

	summaries, err := svc.Generate(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.NoError(t, err)
	id := summaries[0].SettlementID

	detail, err := svc.Get(ctx, claimsFor("w1", models.RoleWorker), id)
	require.NoError(t, err)
	assert.Equal(t, "Worker One", detail.WorkerName)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, models.TaxBreakdown{Gross: 912229, IncomeTax: 27367, LocalTax: 2737, TotalTax: 30104, NetAmount: 882125}, detail.Tax)

	_, err = svc.Get(ctx, claimsFor("w2", models.RoleWorker), id)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Get(ctx, claimsFor("admin-1", models.RoleAdmin), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSettlementListByPeriodScopesWorkers(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "One", int64Ptr(1000), nil)
	db.addWorker("w2", "Two", int64Ptr(2000), nil)
	db.addApproved("s1", "w1", "A", nil, january2026)
	db.addApproved("s2", "w2", "B", nil, january2026)
	svc := newSettlementService(db)
	_, err := svc.Generate(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.NoError(t, err)

	all, err := svc.ListByPeriod(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.ListByPeriod(ctx, claimsFor("w2", models.RoleWorker), 2026, 1)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "w2", own[0].WorkerID)

	empty, err := svc.ListByPeriod(ctx, claimsFor("admin-1", models.RoleAdmin), 2026, 2)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSettlementScheduledRunGeneratesPreviousMonth(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "One", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "A", nil, january2026)
	svc := newSettlementService(db)
	svc.now = func() time.Time { return time.Date(2026, time.February, 1, 0, 5, 0, 0, time.UTC) }

	svc.runScheduled(ctx)
	require.Len(t, db.settlements, 1)

	svc.runScheduled(ctx)
	assert.Len(t, db.settlements, 1)
}

func TestPreviousMonth(t *testing.T) {
	year, month := previousMonth(time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, year)
	assert.Equal(t, 12, month)

	year, month = previousMonth(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2026, year)
	assert.Equal(t, 2, month)
}

func TestSettlementCancelledReviewLeavesPendingSettlement(t *testing.T) {
	ctx := context.Background()
	f := newSubmissionFixture(t)
	f.db.users["worker-1"] = models.User{ID: "worker-1", FullName: "Worker One", Role: models.RoleWorker, BaseRate: int64Ptr(50000), Active: true}
	settlements := newSettlementService(f.db)
	february2026 := january2026.AddDate(0, 1, 0)

	approveIn := func(id string, at time.Time) {
		t.Helper()
		_, err := f.svc.Approve(ctx, f.admin, id, dto.ReviewDecisionRequest{})
		require.NoError(t, err)
		approved := f.db.submissions[id]
		approved.UpdatedAt = at
		f.db.submissions[id] = approved
	}

	kept := f.create(t)
	cancelled := f.create(t)
	approveIn(kept.ID, january2026)
	approveIn(cancelled.ID, january2026)

	january, err := settlements.Generate(ctx, f.admin, 2026, 1)
	require.NoError(t, err)
	require.Len(t, january, 1)
	janID := january[0].SettlementID
	assert.Equal(t, int64(100000), january[0].TotalAmount)

	_, err = f.svc.CancelReview(ctx, f.admin, cancelled.ID)
	require.NoError(t, err)
	items := itemsOf(f.db, janID)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].SubmissionID)
	assert.Equal(t, int64(50000), f.db.settlements[janID].TotalAmount)

	approveIn(cancelled.ID, february2026)
	february, err := settlements.Generate(ctx, f.admin, 2026, 2)
	require.NoError(t, err)
	require.Len(t, february, 1)
	febID := february[0].SettlementID

	_, err = settlements.Confirm(ctx, f.admin, janID)
	require.NoError(t, err)
	_, err = settlements.Confirm(ctx, f.admin, febID)
	require.NoError(t, err)

	paid := map[string]int{}
	for _, item := range f.db.items {
		paid[item.SubmissionID]++
	}
	assert.Equal(t, 1, paid[kept.ID])
	assert.Equal(t, 1, paid[cancelled.ID])
}

func TestSettlementGenerateSkipsWorkSettledInAnotherPeriod(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "One", nil, january2026)
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	january, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	require.Len(t, january, 1)

	moved := db.submissions["s1"]
	moved.UpdatedAt = january2026.AddDate(0, 1, 0)
	db.submissions["s1"] = moved

	february, err := svc.Generate(ctx, admin, 2026, 2)
	require.NoError(t, err)
	assert.Empty(t, february)

	report, err := svc.Regenerate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{january[0].SettlementID}, report.Removed)
}

func TestSubmissionDeleteAfterCancelledApproval(t *testing.T) {
	ctx := context.Background()
	f := newSubmissionFixture(t)
	f.db.users["worker-1"] = models.User{ID: "worker-1", FullName: "Worker One", Role: models.RoleWorker, BaseRate: int64Ptr(50000), Active: true}
	submission := f.create(t)
	_, err := f.svc.Approve(ctx, f.admin, submission.ID, dto.ReviewDecisionRequest{})
	require.NoError(t, err)
	approved := f.db.submissions[submission.ID]
	approved.UpdatedAt = january2026
	f.db.submissions[submission.ID] = approved

	summaries, err := newSettlementService(f.db).Generate(ctx, f.admin, 2026, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	_, err = f.svc.CancelReview(ctx, f.admin, submission.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.worker, submission.ID))

	assert.Empty(t, itemsOf(f.db, summaries[0].SettlementID))
	assert.Equal(t, int64(0), f.db.settlements[summaries[0].SettlementID].TotalAmount)
}

func TestSettlementRegenerateSurfacesItemLoadFailure(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", int64Ptr(50000), nil)
	db.addApproved("s1", "w1", "One", nil, january2026)
	svc := newSettlementService(db)
	admin := claimsFor("admin-1", models.RoleAdmin)

	summaries, err := svc.Generate(ctx, admin, 2026, 1)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, admin, summaries[0].SettlementID)
	require.NoError(t, err)

	db.failListItems = errors.New("connection reset")
	_, err = svc.Regenerate(ctx, admin, 2026, 1)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}
