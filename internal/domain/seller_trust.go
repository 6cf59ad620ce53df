package domain

import (
	"time"

	"github.com/google/uuid"
)

// SellerTrustScore is the externally computed 0-100 reliability rating,
// synced into the platform database by the scoring service.
type SellerTrustScore struct {
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey" json:"seller_id"`
	Score     float64   `gorm:"column:score;type:decimal(5,2);not null" json:"score"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SellerTrustScore) TableName() string {
	return "seller_trust_scores"
}
