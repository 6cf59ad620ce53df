package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is the purchase a sale completion settles. Only the fields the
// escrow flow reads are modelled here.
type Order struct {
	ID             uuid.UUID   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID        uuid.UUID   `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID       uuid.UUID   `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	CardInstanceID uuid.UUID   `gorm:"column:card_instance_id;type:uuid;not null;index" json:"card_instance_id"`
	Amount         float64     `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Status         OrderStatus `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt      time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	return nil
}
