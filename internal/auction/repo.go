package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
)

// Repository manages persistence for loads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, load *models.Load) error
	Get(ctx context.Context, id uuid.UUID) (*models.Load, error)
	// UpdateGuarded applies updates only while the load still holds
	// fromStatus, and reports whether a row changed. Losing the guard means
	// another actor transitioned the load first.
	UpdateGuarded(ctx context.Context, id uuid.UUID, fromStatus enums.LoadStatus, updates map[string]any) (bool, error)
	ListByStatus(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error)
	ListDueToStart(ctx context.Context, now time.Time, limit int) ([]models.Load, error)
	ListDueToClose(ctx context.Context, now time.Time, limit int) ([]models.Load, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a load repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, load *models.Load) error {
	return r.db.WithContext(ctx).Create(load).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Load, error) {
	var load models.Load
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&load).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &load, nil
}

func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, fromStatus enums.LoadStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Load{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByStatus(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND is_active", status)
	if shipperID != nil {
		query = query.Where("shipper_id = ?", *shipperID)
	}

	var loads []models.Load
	if err := query.Order("created_at DESC").Find(&loads).Error; err != nil {
		return nil, err
	}
	return loads, nil
}

func (r *repository) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]models.Load, error) {
	var loads []models.Load
	if err := r.db.WithContext(ctx).
		Where("status = ? AND bid_start_time <= ?", enums.LoadStatusNotStarted, now).
		Order("bid_start_time ASC").
		Limit(limit).
		Find(&loads).Error; err != nil {
		return nil, err
	}
	return loads, nil
}

func (r *repository) ListDueToClose(ctx context.Context, now time.Time, limit int) ([]models.Load, error) {
	var loads []models.Load
	if err := r.db.WithContext(ctx).
		Where("status = ? AND bid_end_time <= ?", enums.LoadStatusLive, now).
		Order("bid_end_time ASC").
		Limit(limit).
		Find(&loads).Error; err != nil {
		return nil, err
	}
	return loads, nil
}
