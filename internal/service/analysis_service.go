package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/pkg/analyzer"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/jobs"
)

// AnalysisJobType identifies analysis tasks on the job queue.
const AnalysisJobType = "analysis.run"

const (
	outcomeDone     = "done"
	outcomeFallback = "fallback"
	outcomeError    = "error"
	outcomeConflict = "conflict"
)

type analysisStore interface {
	Get(ctx context.Context, submissionID string) (*models.AnalysisResult, error)
	Claim(ctx context.Context, submissionID string, now time.Time) (bool, error)
	Finish(ctx context.Context, result *models.AnalysisResult) error
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type analysisSubmissionReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error)
	ListAwaitingAnalysis(ctx context.Context, limit int) ([]string, error)
}

type videoReader interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Video, error)
}

type mediaPresigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type videoAnalyzer interface {
	Analyze(ctx context.Context, mediaURL string) (*models.AnalysisPayload, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AnalysisServiceConfig governs retries and recovery of analysis runs.
type AnalysisServiceConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	StaleAfter  time.Duration
}

// AnalysisServiceDeps groups collaborators of AnalysisService.
type AnalysisServiceDeps struct {
	Results     analysisStore
	Submissions analysisSubmissionReader
	Videos      videoReader
	Media       mediaPresigner
	Analyzer    videoAnalyzer
	Queue       jobEnqueuer
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      AnalysisServiceConfig
}

// AnalysisService coordinates external video analysis with retry and fallback.
type AnalysisService struct {
	results     analysisStore
	submissions analysisSubmissionReader
	videos      videoReader
	media       mediaPresigner
	analyzer    videoAnalyzer
	queue       jobEnqueuer
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         AnalysisServiceConfig

	sleep func(ctx context.Context, d time.Duration) error
	intn  func(n int) int
	now   func() time.Time
}

// NewAnalysisService constructs the analysis coordinator.
func NewAnalysisService(deps AnalysisServiceDeps) *AnalysisService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.MaxRetries < 0 {
		deps.Config.MaxRetries = 0
	}
	if deps.Config.BackoffBase <= 0 {
		deps.Config.BackoffBase = 10 * time.Second
	}
	if deps.Config.StaleAfter <= 0 {
		deps.Config.StaleAfter = 15 * time.Minute
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &AnalysisService{
		results:     deps.Results,
		submissions: deps.Submissions,
		videos:      deps.Videos,
		media:       deps.Media,
		analyzer:    deps.Analyzer,
		queue:       deps.Queue,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         deps.Config,
		sleep:       sleepContext,
		intn:        rng.Intn,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Analyze runs the analysis of one submission to a terminal state.
// A finished result is returned unchanged; a running one yields Conflict.
func (s *AnalysisService) Analyze(ctx context.Context, submissionID string) (*models.AnalysisResult, error) {
	existing, err := s.results.Get(ctx, submissionID)
	switch {
	case err == nil:
		if done, err := s.settled(existing); err != nil {
			return nil, err
		} else if done {
			return existing, nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to load analysis result")
	}

	claimed, err := s.results.Claim(ctx, submissionID, s.now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to claim analysis")
	}
	if !claimed {
		current, err := s.results.Get(ctx, submissionID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load analysis result")
		}
		if done, err := s.settled(current); err != nil {
			return nil, err
		} else if done {
			return current, nil
		}
		s.metrics.RecordAnalysisOutcome(outcomeConflict)
		return nil, appErrors.Clone(appErrors.ErrConflict, "analysis could not be claimed")
	}

	mediaURL, err := s.resolveMediaURL(ctx, submissionID)
	if err != nil {
		return s.hardFailure(ctx, submissionID, 0, err), nil
	}

	attempts := 0
	var payload *models.AnalysisPayload
	var callErr error
	for retry := 0; ; retry++ {
		attempts++
		payload, callErr = s.analyzer.Analyze(ctx, mediaURL)
		if callErr == nil || !analyzer.IsRateLimited(callErr) || retry >= s.cfg.MaxRetries {
			break
		}
		delay := s.cfg.BackoffBase << retry
		s.metrics.RecordAnalysisRetry()
		s.logger.Info("analysis rate limited, backing off",
			zap.String("submission_id", submissionID),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return s.hardFailure(ctx, submissionID, attempts, err), nil
		}
	}

	result := &models.AnalysisResult{SubmissionID: submissionID, Status: models.AnalysisStatusDone, Attempts: attempts}
	outcome := outcomeDone
	if callErr != nil {
		s.logger.Warn("analysis failed, storing fallback",
			zap.String("submission_id", submissionID),
			zap.Int("attempts", attempts),
			zap.Error(callErr))
		payload = s.fallbackPayload()
		result.IsFallback = true
		message := callErr.Error()
		result.ErrorMessage = &message
		outcome = outcomeFallback
	}
	applyPayload(result, payload)
	finished := s.now()
	result.FinishedAt = &finished
	result.UpdatedAt = finished
	if err := s.results.Finish(ctx, result); err != nil {
		return s.hardFailure(ctx, submissionID, attempts, err), nil
	}
	s.metrics.RecordAnalysisOutcome(outcome)
	return result, nil
}

// settled reports whether existing is terminal for a new run; PROCESSING is a conflict.
func (s *AnalysisService) settled(existing *models.AnalysisResult) (bool, error) {
	switch existing.Status {
	case models.AnalysisStatusDone:
		return true, nil
	case models.AnalysisStatusProcessing:
		s.metrics.RecordAnalysisOutcome(outcomeConflict)
		return true, appErrors.Clone(appErrors.ErrConflict, "analysis already in progress")
	}
	return false, nil
}

func (s *AnalysisService) resolveMediaURL(ctx context.Context, submissionID string) (string, error) {
	submission, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		return "", err
	}
	video, err := s.videos.GetByID(ctx, nil, submission.VideoID)
	if err != nil {
		return "", err
	}
	return s.media.PresignGet(ctx, video.ObjectKey)
}

// hardFailure records ERROR and hands the caller a fallback that is not persisted.
func (s *AnalysisService) hardFailure(ctx context.Context, submissionID string, attempts int, cause error) *models.AnalysisResult {
	message := cause.Error()
	finished := s.now()
	failed := &models.AnalysisResult{
		SubmissionID: submissionID,
		Status:       models.AnalysisStatusError,
		Attempts:     attempts,
		ErrorMessage: &message,
		FinishedAt:   &finished,
		UpdatedAt:    finished,
	}
	if err := s.results.Finish(context.WithoutCancel(ctx), failed); err != nil {
		s.logger.Error("failed to record analysis error", zap.String("submission_id", submissionID), zap.Error(err))
	}
	s.logger.Warn("analysis hard failure", zap.String("submission_id", submissionID), zap.Error(cause))
	s.metrics.RecordAnalysisOutcome(outcomeError)

	degraded := *failed
	degraded.IsFallback = true
	applyPayload(&degraded, s.fallbackPayload())
	return &degraded
}

func (s *AnalysisService) fallbackPayload() *models.AnalysisPayload {
	score := func() int { return 60 + s.intn(31) }
	return &models.AnalysisPayload{
		Summary: "Automatic analysis is temporarily unavailable. These scores are provisional estimates; a reviewer will follow up.",
		Scores: models.AnalysisScores{
			Overall:      score(),
			Audio:        score(),
			Visual:       score(),
			Editing:      score(),
			Storytelling: score(),
		},
		TodoItems: []string{
			"Check that dialogue stays audible over background music",
			"Tighten the first three seconds to hook viewers",
			"Confirm the brand mention matches the assignment brief",
		},
		Insights: []string{
			"Provisional result generated without the analysis service",
		},
	}
}

func applyPayload(result *models.AnalysisResult, payload *models.AnalysisPayload) {
	if payload == nil {
		return
	}
	summary := payload.Summary
	result.Summary = &summary
	result.Scores = payload.Scores
	result.TodoItems = models.StringList(payload.TodoItems)
	result.Insights = models.StringList(payload.Insights)
}

// Dispatch queues an analysis run. Failures are logged and counted only.
func (s *AnalysisService) Dispatch(submissionID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: submissionID, Type: AnalysisJobType}); err != nil {
		s.metrics.RecordEnqueueFailure(AnalysisJobType)
		s.logger.Warn("failed to enqueue analysis", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

// Trigger queues analysis on request. A finished result is returned as is.
func (s *AnalysisService) Trigger(ctx context.Context, actor *models.JWTClaims, submissionID string) (*models.AnalysisResult, error) {
	if err := s.authorizeSubmission(ctx, actor, OpAnalysisTrigger, submissionID); err != nil {
		return nil, err
	}
	current, err := s.lookup(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case models.AnalysisStatusDone:
		return current, nil
	case models.AnalysisStatusProcessing:
		return nil, appErrors.Clone(appErrors.ErrConflict, "analysis already in progress")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "analysis is disabled")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: submissionID, Type: AnalysisJobType}); err != nil {
		s.metrics.RecordEnqueueFailure(AnalysisJobType)
		return nil, appErrors.Internal(err, "failed to enqueue analysis")
	}
	return current, nil
}

// GetResult returns the stored analysis of a submission, NONE when absent.
func (s *AnalysisService) GetResult(ctx context.Context, actor *models.JWTClaims, submissionID string) (*models.AnalysisResult, error) {
	if err := s.authorizeSubmission(ctx, actor, OpAnalysisView, submissionID); err != nil {
		return nil, err
	}
	return s.lookup(ctx, submissionID)
}

func (s *AnalysisService) lookup(ctx context.Context, submissionID string) (*models.AnalysisResult, error) {
	result, err := s.results.Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.AnalysisResult{
				SubmissionID: submissionID,
				Status:       models.AnalysisStatusNone,
				TodoItems:    models.StringList{},
				Insights:     models.StringList{},
			}, nil
		}
		return nil, appErrors.Internal(err, "failed to load analysis result")
	}
	return result, nil
}

func (s *AnalysisService) authorizeSubmission(ctx context.Context, actor *models.JWTClaims, op Operation, submissionID string) error {
	if _, err := AuthorizeAny(actor, op); err != nil {
		return err
	}
	submission, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Internal(err, "failed to load submission")
	}
	return Authorize(actor, op, submission.WorkerID)
}

// RecoverPending resets interrupted runs and re-queues submissions without a result.
func (s *AnalysisService) RecoverPending(ctx context.Context) {
	reset, err := s.results.ResetStale(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.logger.Warn("failed to reset stale analysis", zap.Error(err))
	} else if reset > 0 {
		s.logger.Info("reset stale analysis runs", zap.Int64("count", reset))
	}
	ids, err := s.submissions.ListAwaitingAnalysis(ctx, 100)
	if err != nil {
		s.logger.Warn("failed to list submissions awaiting analysis", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.Dispatch(id)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AnalysisWorker bridges queue jobs to AnalysisService.
type AnalysisWorker struct {
	service *AnalysisService
	logger  *zap.Logger
}

// NewAnalysisWorker constructs a worker.
func NewAnalysisWorker(service *AnalysisService, logger *zap.Logger) *AnalysisWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisWorker{service: service, logger: logger}
}

// Handle processes a queue job. Conflicts are dropped instead of retried.
func (w *AnalysisWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != AnalysisJobType {
		w.logger.Warn("unexpected job type", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
	result, err := w.service.Analyze(ctx, job.ID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			w.logger.Debug("analysis already claimed", zap.String("submission_id", job.ID))
			return nil
		}
		return err
	}
	w.logger.Info("analysis finished",
		zap.String("submission_id", job.ID),
		zap.String("status", string(result.Status)),
		zap.Bool("fallback", result.IsFallback))
	return nil
}
