package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustodyState tracks where a physical card currently sits.
type CustodyState string

const (
	CustodyWithOwner CustodyState = "with_owner"
	CustodyInEscrow  CustodyState = "in_escrow"
)

// CardInstance is one physical, individually tracked card unit.
// Instances are soft-deleted through Active; they are never removed.
type CardInstance struct {
	ID            uuid.UUID    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID    `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	Active        bool         `gorm:"column:active;not null;default:true" json:"active"`
	Custody       CustodyState `gorm:"column:custody;type:varchar(20);not null;default:'with_owner'" json:"custody"`
	ValueSnapshot float64      `gorm:"column:value_snapshot;type:decimal(18,2);not null;default:0" json:"value_snapshot"`
	Category      string       `gorm:"column:category" json:"category"`
	Series        string       `gorm:"column:series" json:"series"`
	CreatedAt     time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (CardInstance) TableName() string {
	return "card_instances"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (c *CardInstance) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Custody == "" {
		c.Custody = CustodyWithOwner
	}
	return nil
}
