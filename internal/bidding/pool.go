package bidding

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
)

// CarrierPool answers whether a carrier may participate in a load's private
// bidding pool. Open-market loads never consult it.
type CarrierPool interface {
	AllowedToBid(ctx context.Context, load *models.Load, carrierID uuid.UUID) (bool, error)
}

type carrierPool struct {
	db *gorm.DB
}

// NewCarrierPool reads pool membership from the carrier master table: only
// active carriers flagged allowed_to_bid may enter a private pool.
func NewCarrierPool(db *gorm.DB) CarrierPool {
	return &carrierPool{db: db}
}

func (p *carrierPool) AllowedToBid(ctx context.Context, load *models.Load, carrierID uuid.UUID) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.Carrier{}).
		Where("id = ? AND allowed_to_bid AND is_active", carrierID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
