package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/internal/repository"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/storage"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type submissionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error)
	ListChain(ctx context.Context, exec sqlx.ExtContext, rootID string) ([]models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error
	DeletePending(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type videoStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, video *models.Video) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Video, error)
	SetVisibility(ctx context.Context, exec sqlx.ExtContext, id string, visibility models.VideoVisibility) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type feedbackStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, feedback *models.Feedback) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Feedback, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Feedback, error)
	CountBySubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (int, error)
	Update(ctx context.Context, feedback *models.Feedback) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type assignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
}

type settlementLockChecker interface {
	HasLockedSubmission(ctx context.Context, exec sqlx.ExtContext, submissionID string) (bool, error)
	DetachFromPending(ctx context.Context, exec sqlx.ExtContext, submissionID string) ([]string, error)
	SumItems(ctx context.Context, exec sqlx.ExtContext, settlementID string) (int64, error)
	UpdateTotal(ctx context.Context, exec sqlx.ExtContext, id string, total int64) error
}

type mediaStore interface {
	Stat(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

type analysisDispatcher interface {
	Dispatch(submissionID string)
}

// SubmissionServiceDeps groups collaborators of SubmissionService.
type SubmissionServiceDeps struct {
	Tx          transactor
	Submissions submissionStore
	Videos      videoStore
	Feedbacks   feedbackStore
	Assignments assignmentReader
	Settlements settlementLockChecker
	Media       mediaStore
	Analysis    analysisDispatcher
	Cache       *CacheService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// SubmissionService drives the review state machine of submissions.
type SubmissionService struct {
	tx          transactor
	submissions submissionStore
	videos      videoStore
	feedbacks   feedbackStore
	assignments assignmentReader
	settlements settlementLockChecker
	media       mediaStore
	analysis    analysisDispatcher
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(deps SubmissionServiceDeps) *SubmissionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &SubmissionService{
		tx:          deps.Tx,
		submissions: deps.Submissions,
		videos:      deps.Videos,
		feedbacks:   deps.Feedbacks,
		assignments: deps.Assignments,
		settlements: deps.Settlements,
		media:       deps.Media,
		analysis:    deps.Analysis,
		cache:       deps.Cache,
		validator:   deps.Validator,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create registers an uploaded video as the root submission of a new chain.
func (s *SubmissionService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateSubmissionRequest) (*models.Submission, error) {
	if _, err := AuthorizeAny(actor, OpSubmissionCreate); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	assignment, err := s.assignments.GetByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assignment")
	}
	owner := ""
	if assignment.WorkerID != nil {
		owner = *assignment.WorkerID
	}
	if err := Authorize(actor, OpSubmissionCreate, owner); err != nil {
		return nil, err
	}
	if err := s.ensureMedia(ctx, req.ObjectKey); err != nil {
		return nil, err
	}

	submission := &models.Submission{
		AssignmentID: assignment.ID,
		WorkerID:     actor.UserID,
		Status:       models.SubmissionStatusPending,
		Version:      models.FormatVersion(1, 0),
		VersionSlot:  0,
	}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		video := &models.Video{
			ObjectKey:   req.ObjectKey,
			Title:       req.Title,
			Description: req.Description,
			Visibility:  models.VideoVisibilityPrivate,
		}
		if err := s.videos.Create(ctx, exec, video); err != nil {
			return err
		}
		submission.VideoID = video.ID
		return s.submissions.Create(ctx, exec, submission)
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create submission")
	}
	s.logger.Info("submission created", zap.String("submission_id", submission.ID), zap.String("worker_id", submission.WorkerID))
	s.dispatchAnalysis(submission.ID)
	return submission, nil
}

// Get returns a submission with its video and the whole version chain.
func (s *SubmissionService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SubmissionDetail, error) {
	submission, err := s.load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpSubmissionView, submission.WorkerID); err != nil {
		return nil, err
	}
	video, err := s.videos.GetByID(ctx, nil, submission.VideoID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load video")
	}
	chain, err := s.submissions.ListChain(ctx, nil, submission.RootID())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load versions")
	}
	detail := &models.SubmissionDetail{Submission: *submission, Video: video, Versions: chain}
	if len(chain) > 0 {
		detail.Current = chain[len(chain)-1].ID == submission.ID
	}
	return detail, nil
}

// List returns a page of submissions. Workers only ever see their own.
func (s *SubmissionService) List(ctx context.Context, actor *models.JWTClaims, query dto.SubmissionQuery) ([]models.Submission, *models.Pagination, error) {
	scope, err := AuthorizeAny(actor, OpSubmissionView)
	if err != nil {
		return nil, nil, err
	}
	page, size := normalizePage(query.Page, query.PageSize)
	filter := models.SubmissionFilter{
		AssignmentID: query.AssignmentID,
		WorkerID:     query.WorkerID,
		Limit:        size,
		Offset:       (page - 1) * size,
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown submission status")
		}
		filter.Status = append(filter.Status, status)
	}
	if scope == ScopeOwn {
		filter.WorkerID = actor.UserID
	}
	items, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list submissions")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve accepts a submission and publishes its video.
func (s *SubmissionService) Approve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error) {
	return s.decide(ctx, actor, id, req, models.SubmissionStatusApproved)
}

// Reject declines a submission and keeps its video private.
func (s *SubmissionService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error) {
	return s.decide(ctx, actor, id, req, models.SubmissionStatusRejected)
}

func (s *SubmissionService) decide(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest, to models.SubmissionStatus) (*models.Submission, error) {
	if err := Authorize(actor, OpSubmissionReview, ""); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	var result *models.Submission
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		submission, err := s.lock(ctx, exec, id)
		if err != nil {
			return err
		}
		switch submission.Status {
		case models.SubmissionStatusInReview:
		case models.SubmissionStatusPending:
			count, err := s.feedbacks.CountBySubmission(ctx, exec, submission.ID)
			if err != nil {
				return appErrors.Internal(err, "failed to count feedback")
			}
			if count > 0 {
				return appErrors.Clone(appErrors.ErrInvalidState, "pending submission with feedback must be reviewed first")
			}
		default:
			return appErrors.Clone(appErrors.ErrInvalidState, "submission is not awaiting review")
		}

		now := s.now()
		reviewer := actor.UserID
		params := repository.TransitionParams{
			ID:            submission.ID,
			From:          submission.Status,
			To:            to,
			ReviewerID:    &reviewer,
			ReviewedAt:    &now,
			ReviewSummary: req.Summary,
		}
		visibility := models.VideoVisibilityPrivate
		if to == models.SubmissionStatusApproved {
			params.ApprovedAt = &now
			visibility = models.VideoVisibilityPublic
		}
		if err := s.transition(ctx, exec, params); err != nil {
			return err
		}
		if err := s.videos.SetVisibility(ctx, exec, submission.VideoID, visibility); err != nil {
			return appErrors.Internal(err, "failed to update video visibility")
		}
		submission.Status = to
		submission.ReviewerID = &reviewer
		submission.ReviewedAt = &now
		submission.ReviewSummary = req.Summary
		if params.ApprovedAt != nil {
			submission.ApprovedAt = params.ApprovedAt
		}
		result = submission
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	s.logger.Info("submission reviewed",
		zap.String("submission_id", result.ID),
		zap.String("status", string(to)),
		zap.String("reviewer_id", actor.UserID))
	return result, nil
}

// CancelReview undoes an approve or reject decision.
func (s *SubmissionService) CancelReview(ctx context.Context, actor *models.JWTClaims, id string) (*models.Submission, error) {
	if err := Authorize(actor, OpSubmissionReview, ""); err != nil {
		return nil, err
	}
	var (
		result   *models.Submission
		detached []string
	)
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		submission, err := s.lock(ctx, exec, id)
		if err != nil {
			return err
		}
		switch submission.Status {
		case models.SubmissionStatusApproved:
			locked, err := s.settlements.HasLockedSubmission(ctx, exec, submission.ID)
			if err != nil {
				return appErrors.Internal(err, "failed to check settlements")
			}
			if locked {
				return appErrors.Clone(appErrors.ErrInvalidState, "submission is part of a confirmed settlement")
			}
			if detached, err = s.detachFromSettlements(ctx, exec, submission.ID); err != nil {
				return err
			}
		case models.SubmissionStatusRejected:
		default:
			return appErrors.Clone(appErrors.ErrInvalidState, "submission has no review decision to cancel")
		}
		count, err := s.feedbacks.CountBySubmission(ctx, exec, submission.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to count feedback")
		}
		target := models.SubmissionStatusPending
		if count > 0 {
			target = models.SubmissionStatusInReview
		}
		if err := s.transition(ctx, exec, repository.TransitionParams{
			ID:          submission.ID,
			From:        submission.Status,
			To:          target,
			ClearReview: true,
		}); err != nil {
			return err
		}
		if err := s.videos.SetVisibility(ctx, exec, submission.VideoID, models.VideoVisibilityPrivate); err != nil {
			return appErrors.Internal(err, "failed to update video visibility")
		}
		submission.Status = target
		submission.ReviewerID = nil
		submission.ReviewedAt = nil
		submission.ApprovedAt = nil
		submission.ReviewSummary = nil
		result = submission
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	keys := make([]string, 0, len(detached))
	for _, settlementID := range detached {
		keys = append(keys, settlementCachePrefix+settlementID)
	}
	_ = s.cache.Invalidate(ctx, keys...)
	s.logger.Info("review cancelled",
		zap.String("submission_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.Strings("detached_settlements", detached))
	return result, nil
}

// detachFromSettlements drops the submission from PENDING settlements and
// rewrites their totals.
func (s *SubmissionService) detachFromSettlements(ctx context.Context, exec sqlx.ExtContext, submissionID string) ([]string, error) {
	ids, err := s.settlements.DetachFromPending(ctx, exec, submissionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to detach settlement items")
	}
	for _, settlementID := range ids {
		total, err := s.settlements.SumItems(ctx, exec, settlementID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to sum settlement items")
		}
		if err := s.settlements.UpdateTotal(ctx, exec, settlementID, total); err != nil {
			return nil, appErrors.Internal(err, "failed to update settlement total")
		}
	}
	return ids, nil
}

// RequestRevision marks a rejected submission as awaiting a new upload.
func (s *SubmissionService) RequestRevision(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error) {
	if err := Authorize(actor, OpSubmissionReview, ""); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only rejected submissions can be sent back for revision")
	}
	if err := s.transition(ctx, nil, repository.TransitionParams{
		ID:            submission.ID,
		From:          models.SubmissionStatusRejected,
		To:            models.SubmissionStatusRevised,
		ReviewSummary: req.Summary,
	}); err != nil {
		return nil, err
	}
	submission.Status = models.SubmissionStatusRevised
	if req.Summary != nil {
		submission.ReviewSummary = req.Summary
	}
	return submission, nil
}

// Bump appends a new PENDING version to the chain of the given submission.
func (s *SubmissionService) Bump(ctx context.Context, actor *models.JWTClaims, id string, req dto.BumpSubmissionRequest) (*models.Submission, error) {
	if _, err := AuthorizeAny(actor, OpSubmissionBump); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bump payload")
	}
	source, err := s.load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpSubmissionBump, source.WorkerID); err != nil {
		return nil, err
	}
	if err := s.ensureMedia(ctx, req.ObjectKey); err != nil {
		return nil, err
	}

	var next *models.Submission
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		root, err := s.lock(ctx, exec, source.RootID())
		if err != nil {
			return err
		}
		chain, err := s.submissions.ListChain(ctx, exec, root.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to load versions")
		}
		if len(chain) == 0 {
			chain = []models.Submission{*root}
		}
		current := chain[len(chain)-1]
		if current.Status == models.SubmissionStatusApproved {
			return appErrors.Clone(appErrors.ErrInvalidState, "an approved version cannot be superseded")
		}
		major, _ := models.ParseVersion(root.Version)
		maxSlot, maxMinor := 0, 0
		for _, item := range chain {
			if item.VersionSlot > maxSlot {
				maxSlot = item.VersionSlot
			}
			if _, minor := models.ParseVersion(item.Version); minor > maxMinor {
				maxMinor = minor
			}
		}

		previous, err := s.videos.GetByID(ctx, exec, current.VideoID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load previous video")
		}
		video := &models.Video{ObjectKey: req.ObjectKey, Visibility: models.VideoVisibilityPrivate}
		if previous != nil {
			video.Title = previous.Title
			video.Description = previous.Description
		}
		if req.Title != nil {
			video.Title = *req.Title
		}
		if req.Description != nil {
			video.Description = req.Description
		}
		if err := s.videos.Create(ctx, exec, video); err != nil {
			return appErrors.Internal(err, "failed to create video")
		}

		rootID := root.ID
		next = &models.Submission{
			AssignmentID: root.AssignmentID,
			WorkerID:     root.WorkerID,
			VideoID:      video.ID,
			Status:       models.SubmissionStatusPending,
			Version:      models.FormatVersion(major, maxMinor+1),
			VersionSlot:  maxSlot + 1,
			ParentID:     &rootID,
		}
		if err := s.submissions.Create(ctx, exec, next); err != nil {
			if repository.IsUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "a concurrent version was created, retry")
			}
			return appErrors.Internal(err, "failed to create submission version")
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	s.logger.Info("submission bumped",
		zap.String("submission_id", next.ID),
		zap.String("root_id", *next.ParentID),
		zap.String("version", next.Version),
		zap.Int("slot", next.VersionSlot))
	s.dispatchAnalysis(next.ID)
	return next, nil
}

// Delete removes a PENDING submission together with its feedback and video.
func (s *SubmissionService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	submission, err := s.load(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := Authorize(actor, OpSubmissionDelete, submission.WorkerID); err != nil {
		return err
	}
	var objectKey string
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.lock(ctx, exec, id)
		if err != nil {
			return err
		}
		if locked.Status != models.SubmissionStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "only pending submissions can be deleted")
		}
		if locked.ParentID == nil {
			chain, err := s.submissions.ListChain(ctx, exec, locked.ID)
			if err != nil {
				return appErrors.Internal(err, "failed to load versions")
			}
			if len(chain) > 1 {
				return appErrors.Clone(appErrors.ErrInvalidState, "the first version cannot be deleted while later versions exist")
			}
		}
		video, err := s.videos.GetByID(ctx, exec, locked.VideoID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load video")
		}
		if err := s.submissions.DeletePending(ctx, exec, locked.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "submission changed concurrently")
			}
			return appErrors.Internal(err, "failed to delete submission")
		}
		if video != nil {
			objectKey = video.ObjectKey
			if err := s.videos.Delete(ctx, exec, video.ID); err != nil {
				return appErrors.Internal(err, "failed to delete video")
			}
		}
		return nil
	})
	if err != nil {
		return appErrors.FromError(err)
	}
	if objectKey != "" && s.media != nil {
		if err := s.media.Remove(ctx, objectKey); err != nil {
			s.logger.Warn("media removal failed", zap.String("submission_id", id), zap.String("object_key", objectKey), zap.Error(err))
		}
	}
	s.logger.Info("submission deleted", zap.String("submission_id", id))
	return nil
}

// CreateFeedback attaches a reviewer comment and opens the review on first feedback.
func (s *SubmissionService) CreateFeedback(ctx context.Context, actor *models.JWTClaims, submissionID string, req dto.CreateFeedbackRequest) (*models.Feedback, error) {
	if err := Authorize(actor, OpFeedbackCreate, ""); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	if err := validateAnchors(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	var feedback *models.Feedback
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		submission, err := s.lock(ctx, exec, submissionID)
		if err != nil {
			return err
		}
		if _, err := s.assignments.GetByID(ctx, submission.AssignmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
			}
			return appErrors.Internal(err, "failed to load assignment")
		}
		if !acceptsFeedback(submission.Status) {
			return appErrors.Clone(appErrors.ErrInvalidState, "feedback is closed for this submission")
		}
		feedback = &models.Feedback{
			SubmissionID: submission.ID,
			AuthorID:     actor.UserID,
			Content:      req.Content,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
		}
		if err := s.feedbacks.Create(ctx, exec, feedback); err != nil {
			return appErrors.Internal(err, "failed to create feedback")
		}
		if submission.Status == models.SubmissionStatusPending {
			return s.transition(ctx, exec, repository.TransitionParams{
				ID:   submission.ID,
				From: models.SubmissionStatusPending,
				To:   models.SubmissionStatusInReview,
			})
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return feedback, nil
}

// ListFeedback returns the feedback of a submission.
func (s *SubmissionService) ListFeedback(ctx context.Context, actor *models.JWTClaims, submissionID string) ([]models.Feedback, error) {
	submission, err := s.load(ctx, nil, submissionID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpFeedbackView, submission.WorkerID); err != nil {
		return nil, err
	}
	items, err := s.feedbacks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list feedback")
	}
	return items, nil
}

// UpdateFeedback edits content or anchors. It never changes submission status.
func (s *SubmissionService) UpdateFeedback(ctx context.Context, actor *models.JWTClaims, feedbackID string, req dto.UpdateFeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	feedback, err := s.loadFeedback(ctx, nil, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpFeedbackModify, feedback.AuthorID); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, nil, feedback.SubmissionID)
	if err != nil {
		return nil, err
	}
	if !acceptsFeedback(submission.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "feedback is closed for this submission")
	}
	if req.Content != nil {
		feedback.Content = *req.Content
	}
	if req.StartTime != nil {
		feedback.StartTime = req.StartTime
	}
	if req.EndTime != nil {
		feedback.EndTime = req.EndTime
	}
	if err := validateAnchors(feedback.StartTime, feedback.EndTime); err != nil {
		return nil, err
	}
	if err := s.feedbacks.Update(ctx, feedback); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "feedback not found")
		}
		return nil, appErrors.Internal(err, "failed to update feedback")
	}
	return feedback, nil
}

// DeleteFeedback removes a feedback entry. Removing the last feedback of an
// IN_REVIEW submission sends it back to PENDING.
func (s *SubmissionService) DeleteFeedback(ctx context.Context, actor *models.JWTClaims, feedbackID string) error {
	feedback, err := s.loadFeedback(ctx, nil, feedbackID)
	if err != nil {
		return err
	}
	if err := Authorize(actor, OpFeedbackModify, feedback.AuthorID); err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		submission, err := s.lock(ctx, exec, feedback.SubmissionID)
		if err != nil {
			return err
		}
		if !acceptsFeedback(submission.Status) {
			return appErrors.Clone(appErrors.ErrInvalidState, "feedback is closed for this submission")
		}
		if err := s.feedbacks.Delete(ctx, exec, feedback.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "feedback not found")
			}
			return appErrors.Internal(err, "failed to delete feedback")
		}
		if submission.Status != models.SubmissionStatusInReview {
			return nil
		}
		remaining, err := s.feedbacks.CountBySubmission(ctx, exec, submission.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to count feedback")
		}
		if remaining > 0 {
			return nil
		}
		return s.transition(ctx, exec, repository.TransitionParams{
			ID:   submission.ID,
			From: models.SubmissionStatusInReview,
			To:   models.SubmissionStatusPending,
		})
	})
	if err != nil {
		return appErrors.FromError(err)
	}
	return nil
}

func (s *SubmissionService) load(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	return submission, nil
}

func (s *SubmissionService) lock(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Submission, error) {
	submission, err := s.submissions.LockByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to lock submission")
	}
	return submission, nil
}

func (s *SubmissionService) loadFeedback(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Feedback, error) {
	feedback, err := s.feedbacks.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "feedback not found")
		}
		return nil, appErrors.Internal(err, "failed to load feedback")
	}
	return feedback, nil
}

// transition applies a guarded status write; a stale read surfaces as InvalidState.
func (s *SubmissionService) transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error {
	if err := s.submissions.Transition(ctx, exec, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "submission status changed concurrently")
		}
		return appErrors.Internal(err, "failed to update submission status")
	}
	return nil
}

func (s *SubmissionService) ensureMedia(ctx context.Context, key string) error {
	if s.media == nil {
		return nil
	}
	if err := s.media.Stat(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return appErrors.Clone(appErrors.ErrValidation, "uploaded media object not found")
		}
		return appErrors.Internal(err, "failed to verify media object")
	}
	return nil
}

func (s *SubmissionService) dispatchAnalysis(submissionID string) {
	if s.analysis == nil {
		return
	}
	s.analysis.Dispatch(submissionID)
}

func acceptsFeedback(status models.SubmissionStatus) bool {
	return status == models.SubmissionStatusPending || status == models.SubmissionStatusInReview
}

func validateAnchors(start, end *float64) error {
	if start != nil && end != nil && *end < *start {
		return appErrors.Clone(appErrors.ErrValidation, "endTime must not be before startTime")
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
