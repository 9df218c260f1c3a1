package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/internal/repository"
	appErrors "github.com/reelhub/review-api/pkg/errors"
)

const settlementCachePrefix = "settlement:"

type settlementStore interface {
	LockPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) error
	CountByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, settlement *models.Settlement) error
	CreateItems(ctx context.Context, exec sqlx.ExtContext, items []models.SettlementItem) error
	UpdateTotal(ctx context.Context, exec sqlx.ExtContext, id string, total int64) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Settlement, error)
	ListByPeriod(ctx context.Context, exec sqlx.ExtContext, year, month int, workerID string) ([]models.Settlement, error)
	ListItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) ([]models.SettlementItem, error)
	GetItem(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SettlementItem, error)
	UpdateItemAmounts(ctx context.Context, exec sqlx.ExtContext, item *models.SettlementItem) error
	SumItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) (int64, error)
	DeleteItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) error
	DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error
	Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SettlementStatus) error
}

type approvedWorkReader interface {
	ListApprovedInPeriod(ctx context.Context, exec sqlx.ExtContext, from, to time.Time) ([]models.ApprovedWork, error)
}

type workerDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	RateProfile(ctx context.Context, exec sqlx.ExtContext, workerID string) (*models.WorkerRateProfile, error)
}

// SettlementServiceDeps groups collaborators of SettlementService.
type SettlementServiceDeps struct {
	Tx          transactor
	Settlements settlementStore
	Work        approvedWorkReader
	Workers     workerDirectory
	Cache       *CacheService
	Metrics     *MetricsService
	Tax         TaxPolicy
	Logger      *zap.Logger
}

// SettlementService builds and manages monthly worker settlements.
type SettlementService struct {
	tx          transactor
	settlements settlementStore
	work        approvedWorkReader
	workers     workerDirectory
	cache       *CacheService
	metrics     *MetricsService
	tax         TaxPolicy
	logger      *zap.Logger
	now         func() time.Time
}

// NewSettlementService constructs the settlement service.
func NewSettlementService(deps SettlementServiceDeps) *SettlementService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tax == (TaxPolicy{}) {
		deps.Tax = DefaultTaxPolicy
	}
	return &SettlementService{
		tx:          deps.Tx,
		settlements: deps.Settlements,
		work:        deps.Work,
		workers:     deps.Workers,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		tax:         deps.Tax,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// workerBatch is the approved work of one worker inside a period.
type workerBatch struct {
	workerID string
	works    []models.ApprovedWork
}

// Generate creates one PENDING settlement per worker with approved work in the
// period. A period can be generated once; later calls fail with AlreadyGenerated.
func (s *SettlementService) Generate(ctx context.Context, actor *models.JWTClaims, year, month int) ([]models.SettlementSummary, error) {
	if err := Authorize(actor, OpSettlementGenerate, ""); err != nil {
		return nil, err
	}
	return s.generate(ctx, year, month)
}

func (s *SettlementService) generate(ctx context.Context, year, month int) ([]models.SettlementSummary, error) {
	from, to, err := periodBounds(year, month)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var summaries []models.SettlementSummary
	itemCount := 0
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		summaries = nil
		itemCount = 0
		if err := s.settlements.LockPeriod(ctx, exec, year, month); err != nil {
			return appErrors.Internal(err, "failed to lock settlement period")
		}
		count, err := s.settlements.CountByPeriod(ctx, exec, year, month)
		if err != nil {
			return appErrors.Internal(err, "failed to check settlement period")
		}
		if count > 0 {
			return appErrors.ErrAlreadyGenerated
		}
		batches, err := s.loadBatches(ctx, exec, from, to)
		if err != nil {
			return err
		}
		for _, batch := range batches {
			summary, err := s.createSettlement(ctx, exec, year, month, batch)
			if err != nil {
				return err
			}
			summaries = append(summaries, summary)
			itemCount += summary.ItemCount
		}
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyGenerated
		}
		return nil, appErrors.FromError(err)
	}
	if summaries == nil {
		summaries = []models.SettlementSummary{}
	}
	s.metrics.ObserveDBQuery("settlement_generate", time.Since(start))
	s.metrics.RecordSettlements("generate", len(summaries), itemCount)
	s.invalidateAll(ctx)
	s.logger.Info("settlements generated",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("settlements", len(summaries)),
		zap.Int("items", itemCount))
	return summaries, nil
}

// Regenerate refreshes PENDING settlements of a period with current rates,
// keeping manual adjustments. CONFIRMED and COMPLETED settlements are skipped.
func (s *SettlementService) Regenerate(ctx context.Context, actor *models.JWTClaims, year, month int) (*models.RegenerationReport, error) {
	if err := Authorize(actor, OpSettlementManage, ""); err != nil {
		return nil, err
	}
	from, to, err := periodBounds(year, month)
	if err != nil {
		return nil, err
	}
	var report *models.RegenerationReport
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		report = &models.RegenerationReport{
			Created:   []models.SettlementSummary{},
			Refreshed: []models.SettlementSummary{},
			Removed:   []string{},
			Skipped:   []models.SettlementSummary{},
		}
		if err := s.settlements.LockPeriod(ctx, exec, year, month); err != nil {
			return appErrors.Internal(err, "failed to lock settlement period")
		}
		existing, err := s.settlements.ListByPeriod(ctx, exec, year, month, "")
		if err != nil {
			return appErrors.Internal(err, "failed to list settlements")
		}
		byWorker := make(map[string]models.Settlement, len(existing))
		for _, settlement := range existing {
			byWorker[settlement.WorkerID] = settlement
		}
		batches, err := s.loadBatches(ctx, exec, from, to)
		if err != nil {
			return err
		}
		covered := make(map[string]bool, len(batches))
		for _, batch := range batches {
			covered[batch.workerID] = true
			current, ok := byWorker[batch.workerID]
			if !ok {
				summary, err := s.createSettlement(ctx, exec, year, month, batch)
				if err != nil {
					return err
				}
				report.Created = append(report.Created, summary)
				continue
			}
			if !current.Status.Mutable() {
				summary, err := s.summarize(ctx, exec, current)
				if err != nil {
					return err
				}
				report.Skipped = append(report.Skipped, summary)
				continue
			}
			summary, err := s.refreshSettlement(ctx, exec, current, batch)
			if err != nil {
				return err
			}
			report.Refreshed = append(report.Refreshed, summary)
		}
		for _, settlement := range existing {
			if covered[settlement.WorkerID] {
				continue
			}
			if !settlement.Status.Mutable() {
				summary, err := s.summarize(ctx, exec, settlement)
				if err != nil {
					return err
				}
				report.Skipped = append(report.Skipped, summary)
				continue
			}
			if err := s.settlements.DeletePending(ctx, exec, settlement.ID); err != nil {
				return appErrors.Internal(err, "failed to remove empty settlement")
			}
			report.Removed = append(report.Removed, settlement.ID)
		}
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "settlements changed concurrently, retry")
		}
		return nil, appErrors.FromError(err)
	}
	items := 0
	for _, summary := range append(report.Created, report.Refreshed...) {
		items += summary.ItemCount
	}
	s.metrics.RecordSettlements("regenerate", len(report.Created)+len(report.Refreshed), items)
	s.invalidateAll(ctx)
	s.logger.Info("settlements regenerated",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("created", len(report.Created)),
		zap.Int("refreshed", len(report.Refreshed)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

func (s *SettlementService) loadBatches(ctx context.Context, exec sqlx.ExtContext, from, to time.Time) ([]workerBatch, error) {
	works, err := s.work.ListApprovedInPeriod(ctx, exec, from, to)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load approved submissions")
	}
	var batches []workerBatch
	index := make(map[string]int)
	for _, work := range works {
		i, ok := index[work.WorkerID]
		if !ok {
			i = len(batches)
			index[work.WorkerID] = i
			batches = append(batches, workerBatch{workerID: work.WorkerID})
		}
		batches[i].works = append(batches[i].works, work)
	}
	return batches, nil
}

func (s *SettlementService) rateProfile(ctx context.Context, exec sqlx.ExtContext, workerID string) (*models.WorkerRateProfile, error) {
	profile, err := s.workers.RateProfile(ctx, exec, workerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(fmt.Errorf("worker %s not found", workerID), "settlement references a missing worker")
		}
		return nil, appErrors.Internal(err, "failed to load worker rates")
	}
	return profile, nil
}

func (s *SettlementService) createSettlement(ctx context.Context, exec sqlx.ExtContext, year, month int, batch workerBatch) (models.SettlementSummary, error) {
	profile, err := s.rateProfile(ctx, exec, batch.workerID)
	if err != nil {
		return models.SettlementSummary{}, err
	}
	settlement := &models.Settlement{
		WorkerID: batch.workerID,
		Year:     year,
		Month:    month,
		Status:   models.SettlementStatusPending,
	}
	if err := s.settlements.Create(ctx, exec, settlement); err != nil {
		if repository.IsUniqueViolation(err) {
			return models.SettlementSummary{}, appErrors.ErrAlreadyGenerated
		}
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to create settlement")
	}
	return s.writeItems(ctx, exec, settlement.ID, batch, profile, nil)
}

func (s *SettlementService) refreshSettlement(ctx context.Context, exec sqlx.ExtContext, settlement models.Settlement, batch workerBatch) (models.SettlementSummary, error) {
	profile, err := s.rateProfile(ctx, exec, batch.workerID)
	if err != nil {
		return models.SettlementSummary{}, err
	}
	previous, err := s.settlements.ListItems(ctx, exec, settlement.ID)
	if err != nil {
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to load settlement items")
	}
	adjustments := make(map[string]*int64, len(previous))
	for _, item := range previous {
		if item.AdjustedAmount != nil {
			adjustments[item.SubmissionID] = item.AdjustedAmount
		}
	}
	if err := s.settlements.DeleteItems(ctx, exec, settlement.ID); err != nil {
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to clear settlement items")
	}
	return s.writeItems(ctx, exec, settlement.ID, batch, profile, adjustments)
}

func (s *SettlementService) writeItems(ctx context.Context, exec sqlx.ExtContext, settlementID string, batch workerBatch, profile *models.WorkerRateProfile, adjustments map[string]*int64) (models.SettlementSummary, error) {
	items := make([]models.SettlementItem, 0, len(batch.works))
	var total int64
	for i, work := range batch.works {
		amount, source := ResolveRate(rateInputsFor(work, profile))
		item := models.SettlementItem{
			SettlementID: settlementID,
			SubmissionID: work.SubmissionID,
			Position:     i + 1,
			BaseAmount:   amount,
			FinalAmount:  amount,
			RateSource:   source,
		}
		if adjusted, ok := adjustments[work.SubmissionID]; ok {
			item.ApplyAdjustment(adjusted)
		}
		total += item.FinalAmount
		items = append(items, item)
	}
	if err := s.settlements.CreateItems(ctx, exec, items); err != nil {
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to create settlement items")
	}
	if err := s.settlements.UpdateTotal(ctx, exec, settlementID, total); err != nil {
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to update settlement total")
	}
	return models.SettlementSummary{
		SettlementID: settlementID,
		WorkerID:     batch.workerID,
		TotalAmount:  total,
		ItemCount:    len(items),
	}, nil
}

func (s *SettlementService) summarize(ctx context.Context, exec sqlx.ExtContext, settlement models.Settlement) (models.SettlementSummary, error) {
	items, err := s.settlements.ListItems(ctx, exec, settlement.ID)
	if err != nil {
		return models.SettlementSummary{}, appErrors.Internal(err, "failed to load settlement items")
	}
	return models.SettlementSummary{
		SettlementID: settlement.ID,
		WorkerID:     settlement.WorkerID,
		TotalAmount:  settlement.TotalAmount,
		ItemCount:    len(items),
	}, nil
}

// Get returns a settlement with its items and tax breakdown.
func (s *SettlementService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SettlementDetail, error) {
	if _, err := AuthorizeAny(actor, OpSettlementView); err != nil {
		return nil, err
	}
	var cached models.SettlementDetail
	if hit, _ := s.cache.Get(ctx, settlementCachePrefix+id, &cached); hit {
		if err := Authorize(actor, OpSettlementView, cached.WorkerID); err != nil {
			return nil, err
		}
		return &cached, nil
	}
	settlement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpSettlementView, settlement.WorkerID); err != nil {
		return nil, err
	}
	items, err := s.settlements.ListItems(ctx, nil, settlement.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load settlement items")
	}
	if items == nil {
		items = []models.SettlementItem{}
	}
	detail := &models.SettlementDetail{
		Settlement: *settlement,
		Items:      items,
		Tax:        s.tax.Calculate(settlement.TotalAmount),
	}
	if worker, err := s.workers.FindByID(ctx, settlement.WorkerID); err == nil {
		detail.WorkerName = worker.FullName
	} else {
		s.logger.Warn("failed to load settlement worker", zap.String("settlement_id", id), zap.Error(err))
	}
	_ = s.cache.Set(ctx, settlementCachePrefix+id, detail, 0)
	return detail, nil
}

// ListByPeriod lists the settlements of a month. Workers only see their own.
func (s *SettlementService) ListByPeriod(ctx context.Context, actor *models.JWTClaims, year, month int) ([]models.Settlement, error) {
	scope, err := AuthorizeAny(actor, OpSettlementView)
	if err != nil {
		return nil, err
	}
	if _, _, err := periodBounds(year, month); err != nil {
		return nil, err
	}
	workerID := ""
	if scope == ScopeOwn {
		workerID = actor.UserID
	}
	items, err := s.settlements.ListByPeriod(ctx, nil, year, month, workerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list settlements")
	}
	if items == nil {
		items = []models.Settlement{}
	}
	return items, nil
}

// Confirm freezes a PENDING settlement.
func (s *SettlementService) Confirm(ctx context.Context, actor *models.JWTClaims, id string) (*models.Settlement, error) {
	if err := Authorize(actor, OpSettlementManage, ""); err != nil {
		return nil, err
	}
	return s.advance(ctx, id, models.SettlementStatusPending, models.SettlementStatusConfirmed)
}

// Complete marks a CONFIRMED settlement as paid out.
func (s *SettlementService) Complete(ctx context.Context, actor *models.JWTClaims, id string) (*models.Settlement, error) {
	if err := Authorize(actor, OpSettlementComplete, ""); err != nil {
		return nil, err
	}
	return s.advance(ctx, id, models.SettlementStatusConfirmed, models.SettlementStatusCompleted)
}

func (s *SettlementService) advance(ctx context.Context, id string, from, to models.SettlementStatus) (*models.Settlement, error) {
	settlement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if settlement.Status != from {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("settlement is %s, expected %s", settlement.Status, from))
	}
	if err := s.settlements.Transition(ctx, nil, id, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "settlement status changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update settlement status")
	}
	s.invalidate(ctx, id)
	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("settlement advanced", zap.String("settlement_id", id), zap.String("status", string(to)))
	return updated, nil
}

// AdjustItem overrides (or with nil, restores) the amount of one item while
// its settlement is PENDING, recomputing the settlement total.
func (s *SettlementService) AdjustItem(ctx context.Context, actor *models.JWTClaims, itemID string, amount *int64) (*models.SettlementItem, error) {
	if err := Authorize(actor, OpSettlementManage, ""); err != nil {
		return nil, err
	}
	if amount != nil && *amount < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}
	var item *models.SettlementItem
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.settlements.GetItem(ctx, exec, itemID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "settlement item not found")
			}
			return appErrors.Internal(err, "failed to load settlement item")
		}
		settlement, err := s.settlements.LockByID(ctx, exec, current.SettlementID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "settlement not found")
			}
			return appErrors.Internal(err, "failed to lock settlement")
		}
		if !settlement.Status.Mutable() {
			return appErrors.Clone(appErrors.ErrInvalidState, "settlement is no longer editable")
		}
		current.ApplyAdjustment(amount)
		if err := s.settlements.UpdateItemAmounts(ctx, exec, current); err != nil {
			return appErrors.Internal(err, "failed to update settlement item")
		}
		total, err := s.settlements.SumItems(ctx, exec, settlement.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to sum settlement items")
		}
		if err := s.settlements.UpdateTotal(ctx, exec, settlement.ID, total); err != nil {
			return appErrors.Internal(err, "failed to update settlement total")
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	s.invalidate(ctx, item.SettlementID)
	return item, nil
}

// StartScheduler generates the previous month on every tick until ctx ends.
func (s *SettlementService) StartScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runScheduled(ctx)
			}
		}
	}()
}

func (s *SettlementService) runScheduled(ctx context.Context) {
	year, month := previousMonth(s.now())
	summaries, err := s.generate(ctx, year, month)
	switch {
	case err == nil:
		s.logger.Info("scheduled settlement run finished", zap.Int("year", year), zap.Int("month", month), zap.Int("settlements", len(summaries)))
	case appErrors.Is(err, appErrors.ErrAlreadyGenerated):
		s.logger.Debug("settlements already generated", zap.Int("year", year), zap.Int("month", month))
	default:
		s.logger.Error("scheduled settlement run failed", zap.Int("year", year), zap.Int("month", month), zap.Error(err))
	}
}

func (s *SettlementService) load(ctx context.Context, id string) (*models.Settlement, error) {
	settlement, err := s.settlements.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "settlement not found")
		}
		return nil, appErrors.Internal(err, "failed to load settlement")
	}
	return settlement, nil
}

func (s *SettlementService) invalidate(ctx context.Context, id string) {
	_ = s.cache.Invalidate(ctx, settlementCachePrefix+id)
}

func (s *SettlementService) invalidateAll(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, settlementCachePrefix+"*")
}

// periodBounds returns [first day of month, first day of next month) in UTC.
func periodBounds(year, month int) (time.Time, time.Time, error) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid settlement period")
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func previousMonth(now time.Time) (int, int) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}
