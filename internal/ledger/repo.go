package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/pagination"
)

// Repository manages persistence for the append-only rate ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, submission *models.RateSubmission) error
	ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error)
	ListByLoadCarrier(ctx context.Context, loadID, carrierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RateSubmission, error)
	CountAttempts(ctx context.Context, loadID, carrierID uuid.UUID) (int, error)
	LowestForLoad(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error)
	LowestForCarrier(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, submission *models.RateSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *repository) ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error) {
	var rows []models.RateSubmission
	if err := r.db.WithContext(ctx).
		Where("load_id = ?", loadID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByLoadCarrier returns the newest-first submission history, cursor
// paginated on (created_at, id).
func (r *repository) ListByLoadCarrier(ctx context.Context, loadID, carrierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RateSubmission, error) {
	query := r.db.WithContext(ctx).
		Where("load_id = ? AND carrier_id = ?", loadID, carrierID)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.RateSubmission
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountAttempts(ctx context.Context, loadID, carrierID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RateSubmission{}).
		Where("load_id = ? AND carrier_id = ?", loadID, carrierID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *repository) LowestForLoad(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error) {
	return r.lowest(ctx, r.db.WithContext(ctx).Where("load_id = ?", loadID))
}

func (r *repository) LowestForCarrier(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error) {
	return r.lowest(ctx, r.db.WithContext(ctx).Where("load_id = ? AND carrier_id = ?", loadID, carrierID))
}

func (r *repository) lowest(_ context.Context, query *gorm.DB) (*models.RateSubmission, error) {
	var row models.RateSubmission
	err := query.
		Order("rate ASC").
		Order("created_at ASC").
		Order("id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
