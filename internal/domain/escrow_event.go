package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EscrowEventType string

const (
	EventLocked    EscrowEventType = "LOCKED"
	EventUnlocked  EscrowEventType = "UNLOCKED"
	EventCompleted EscrowEventType = "COMPLETED"
	EventReleased  EscrowEventType = "RELEASED"
)

// EscrowEvent is the append-only audit trail of escrow transitions.
type EscrowEvent struct {
	EventID        uuid.UUID       `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	EscrowID       uuid.UUID       `gorm:"column:escrow_id;type:uuid;not null;index" json:"escrow_id"`
	CardInstanceID uuid.UUID       `gorm:"column:card_instance_id;type:uuid;not null" json:"card_instance_id"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	EventType      EscrowEventType `gorm:"column:event_type;type:varchar(20);not null" json:"event_type"`
	Actor          *string         `gorm:"column:actor" json:"actor"`
	EventData      datatypes.JSON  `gorm:"column:event_data" json:"event_data"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (EscrowEvent) TableName() string {
	return "escrow_events"
}

func (e *EscrowEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
