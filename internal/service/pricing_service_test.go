package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
)

func TestPricingSetVideoRate(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.videos["video-1"] = models.Video{ID: "video-1", Title: "Clip"}
	svc := NewPricingService(memVideos{db}, memUsers{db}, nil, nil)
	admin := claimsFor("admin-1", models.RoleAdmin)

	require.NoError(t, svc.SetVideoRate(ctx, admin, "video-1", dto.SetRateRequest{Amount: int64Ptr(80000)}))
	require.NotNil(t, db.videos["video-1"].CustomRate)
	assert.Equal(t, int64(80000), *db.videos["video-1"].CustomRate)

	require.NoError(t, svc.SetVideoRate(ctx, admin, "video-1", dto.SetRateRequest{}))
	assert.Nil(t, db.videos["video-1"].CustomRate)

	err := svc.SetVideoRate(ctx, admin, "missing", dto.SetRateRequest{Amount: int64Ptr(1)})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPricingSetWorkerRate(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addWorker("w1", "Worker", nil, nil)
	svc := NewPricingService(memVideos{db}, memUsers{db}, nil, nil)

	require.NoError(t, svc.SetWorkerRate(ctx, claimsFor("root", models.RoleSuperAdmin), "w1", dto.SetRateRequest{Amount: int64Ptr(45000)}))
	require.NotNil(t, db.users["w1"].BaseRate)
	assert.Equal(t, int64(45000), *db.users["w1"].BaseRate)

	err := svc.SetWorkerRate(ctx, claimsFor("admin-1", models.RoleAdmin), "w1", dto.SetRateRequest{Amount: int64Ptr(-5)})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	err = svc.SetWorkerRate(ctx, claimsFor("w1", models.RoleWorker), "w1", dto.SetRateRequest{Amount: int64Ptr(99999)})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, int64(45000), *db.users["w1"].BaseRate)
}
