package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
)

type videoRateWriter interface {
	SetCustomRate(ctx context.Context, id string, rate *int64) error
}

type workerRateWriter interface {
	SetBaseRate(ctx context.Context, workerID string, rate *int64) error
}

// PricingService manages the per-video and per-worker rate layers.
type PricingService struct {
	videos    videoRateWriter
	workers   workerRateWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPricingService constructs the pricing service.
func NewPricingService(videos videoRateWriter, workers workerRateWriter, validate *validator.Validate, logger *zap.Logger) *PricingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PricingService{videos: videos, workers: workers, validator: validate, logger: logger}
}

// SetVideoRate sets or clears the override rate of a video. It applies to
// settlements generated afterwards.
func (s *PricingService) SetVideoRate(ctx context.Context, actor *models.JWTClaims, videoID string, req dto.SetRateRequest) error {
	if err := s.check(actor, req); err != nil {
		return err
	}
	if err := s.videos.SetCustomRate(ctx, videoID, req.Amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "video not found")
		}
		return appErrors.Internal(err, "failed to update video rate")
	}
	s.logger.Info("video rate updated", zap.String("video_id", videoID), zap.Bool("cleared", req.Amount == nil), zap.String("actor_id", actor.UserID))
	return nil
}

// SetWorkerRate sets or clears the personal base rate of a worker.
func (s *PricingService) SetWorkerRate(ctx context.Context, actor *models.JWTClaims, workerID string, req dto.SetRateRequest) error {
	if err := s.check(actor, req); err != nil {
		return err
	}
	if err := s.workers.SetBaseRate(ctx, workerID, req.Amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "worker not found")
		}
		return appErrors.Internal(err, "failed to update worker rate")
	}
	s.logger.Info("worker rate updated", zap.String("worker_id", workerID), zap.Bool("cleared", req.Amount == nil), zap.String("actor_id", actor.UserID))
	return nil
}

func (s *PricingService) check(actor *models.JWTClaims, req dto.SetRateRequest) error {
	if err := Authorize(actor, OpRateManage, ""); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rate payload")
	}
	return nil
}
