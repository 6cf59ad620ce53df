package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EscrowStatus string

const (
	EscrowLocked    EscrowStatus = "locked"
	EscrowReleased  EscrowStatus = "released"
	EscrowUnlocked  EscrowStatus = "unlocked"
	EscrowCompleted EscrowStatus = "completed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s EscrowStatus) Terminal() bool {
	return s != EscrowLocked
}

// EscrowLock is a hold placed on a card instance on behalf of one order.
// At most one row per card instance may be in EscrowLocked; the partial
// unique index created by database.Migrate enforces it.
type EscrowLock struct {
	ID             uuid.UUID    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CardInstanceID uuid.UUID    `gorm:"column:card_instance_id;type:uuid;not null;index" json:"card_instance_id"`
	OrderID        uuid.UUID    `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	Status         EscrowStatus `gorm:"column:status;type:varchar(20);not null;default:'locked'" json:"status"`
	Reason         *string      `gorm:"column:reason" json:"reason"`
	ResolvedBy     *string      `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	CreatedAt      time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (EscrowLock) TableName() string {
	return "escrow_locks"
}

func (e *EscrowLock) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
