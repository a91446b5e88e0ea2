package leaderboard

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
)

type carrierDirectory struct {
	db *gorm.DB
}

// NewCarrierDirectory reads carrier display names from the read-side master
// table. Missing carriers are simply absent from the result.
func NewCarrierDirectory(db *gorm.DB) CarrierDirectory {
	return &carrierDirectory{db: db}
}

func (d *carrierDirectory) Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}

	var rows []models.Carrier
	if err := d.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	names := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}
