package assignment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
)

// Repository manages persistence for assignment rows. One row per
// (load, carrier); rows are deactivated, never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, loadID, carrierID uuid.UUID) (*models.Assignment, error)
	ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Save(ctx context.Context, assignment *models.Assignment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an assignment repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, loadID, carrierID uuid.UUID) (*models.Assignment, error) {
	var row models.Assignment
	err := r.db.WithContext(ctx).
		Where("load_id = ? AND carrier_id = ?", loadID, carrierID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	if err := r.db.WithContext(ctx).
		Where("load_id = ?", loadID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) Save(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}
