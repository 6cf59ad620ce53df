package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"
	"cardvault-backend/internal/infrastructure/messaging"
	"cardvault-backend/internal/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CardStore is the part of the card instance store the ledger drives.
type CardStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.CardInstance, error)
	TransferOwnership(ctx context.Context, id, newOwnerID uuid.UUID) error
	SetCustody(ctx context.Context, id uuid.UUID, custody domain.CustodyState) error
	HoldInEscrow(ctx context.Context, id uuid.UUID) error
}

// Service is the escrow ledger. Lock exclusivity comes from the partial
// unique index on escrow_locks, not from a read before the insert.
type Service struct {
	DB        *gorm.DB
	Cards     CardStore
	Publisher messaging.Publisher
	Clock     clock.Clock
}

func (s *Service) clk() clock.Clock {
	if s.Clock == nil {
		return clock.NewSystem()
	}
	return s.Clock
}

// Lock places a hold on an active card instance for orderID.
func (s *Service) Lock(ctx context.Context, cardInstanceID, orderID uuid.UUID) (domain.EscrowLock, error) {
	if cardInstanceID == uuid.Nil || orderID == uuid.Nil {
		return domain.EscrowLock{}, fmt.Errorf("card_instance_id and order_id are required: %w", domain.ErrInvalidArgument)
	}

	now := s.clk().Now()
	lock := domain.EscrowLock{
		CardInstanceID: cardInstanceID,
		OrderID:        orderID,
		Status:         domain.EscrowLocked,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		card, err := s.Cards.Get(txCtx, cardInstanceID)
		if err != nil {
			return err
		}
		if !card.Active {
			return fmt.Errorf("card instance %s is inactive: %w", cardInstanceID, domain.ErrNotFound)
		}

		if err := database.Conn(txCtx, s.DB).Create(&lock).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("card instance %s: %w", cardInstanceID, domain.ErrAlreadyLocked)
			}
			return fmt.Errorf("insert escrow lock: %w", err)
		}
		if err := s.Cards.HoldInEscrow(txCtx, cardInstanceID); err != nil {
			return err
		}
		return s.appendEvent(txCtx, lock, domain.EventLocked, nil, map[string]interface{}{
			"value_snapshot": card.ValueSnapshot,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyLocked) {
			log.Info().Str("card_instance_id", cardInstanceID.String()).Str("order_id", orderID.String()).Msg("escrow lock rejected: already locked")
		}
		return domain.EscrowLock{}, err
	}

	log.Info().Str("escrow_id", lock.ID.String()).Str("card_instance_id", cardInstanceID.String()).Str("order_id", orderID.String()).Msg("escrow locked")
	s.publish(ctx, lock, domain.EventLocked, "", "")
	return lock, nil
}

// Unlock cancels the locked escrow held by orderID on cardInstanceID.
// Calling it when no such lock exists, including a second call, fails with
// ErrNotFound.
func (s *Service) Unlock(ctx context.Context, cardInstanceID, orderID uuid.UUID, reason string) (domain.EscrowLock, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.EscrowLock{}, fmt.Errorf("reason is required: %w", domain.ErrInvalidArgument)
	}

	var lock domain.EscrowLock
	err := database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		tx := database.Conn(txCtx, s.DB)
		err := tx.Where("card_instance_id = ? AND order_id = ? AND status = ?", cardInstanceID, orderID, domain.EscrowLocked).
			First(&lock).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no active escrow for card %s and order %s: %w", cardInstanceID, orderID, domain.ErrNotFound)
			}
			return fmt.Errorf("find escrow lock: %w", err)
		}

		if err := s.transition(txCtx, &lock, domain.EscrowUnlocked, &reason, nil); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				return fmt.Errorf("escrow %s resolved concurrently: %w", lock.ID, domain.ErrNotFound)
			}
			return err
		}
		if err := s.Cards.SetCustody(txCtx, cardInstanceID, domain.CustodyWithOwner); err != nil {
			return err
		}
		return s.appendEvent(txCtx, lock, domain.EventUnlocked, nil, map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return domain.EscrowLock{}, err
	}

	log.Info().Str("escrow_id", lock.ID.String()).Str("order_id", orderID.String()).Str("reason", reason).Msg("escrow unlocked")
	s.publish(ctx, lock, domain.EventUnlocked, reason, "")
	return lock, nil
}

// Complete finalises the escrow and transfers the card to newOwnerID in one
// transaction.
func (s *Service) Complete(ctx context.Context, orderID, escrowID, newOwnerID uuid.UUID) (domain.EscrowLock, error) {
	var lock domain.EscrowLock
	err := database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		var err error
		lock, err = s.CompleteInTx(txCtx, orderID, escrowID, newOwnerID)
		return err
	})
	if err != nil {
		return domain.EscrowLock{}, AsTransactionFailure(err)
	}
	s.publish(ctx, lock, domain.EventCompleted, "", "")
	return lock, nil
}

// CompleteInTx is Complete for callers that already own the transaction in
// ctx. It does not publish; the caller does so after its commit.
func (s *Service) CompleteInTx(ctx context.Context, orderID, escrowID, newOwnerID uuid.UUID) (domain.EscrowLock, error) {
	lock, err := s.Get(ctx, escrowID)
	if err != nil {
		return domain.EscrowLock{}, err
	}
	if lock.OrderID != orderID {
		return domain.EscrowLock{}, fmt.Errorf("escrow %s does not belong to order %s: %w", escrowID, orderID, domain.ErrNotFound)
	}
	if lock.Status.Terminal() {
		return domain.EscrowLock{}, fmt.Errorf("escrow %s is %s: %w", escrowID, lock.Status, domain.ErrInvalidState)
	}

	if err := s.Cards.TransferOwnership(ctx, lock.CardInstanceID, newOwnerID); err != nil {
		return domain.EscrowLock{}, err
	}
	if err := s.transition(ctx, &lock, domain.EscrowCompleted, nil, nil); err != nil {
		return domain.EscrowLock{}, err
	}
	if err := s.Cards.SetCustody(ctx, lock.CardInstanceID, domain.CustodyWithOwner); err != nil {
		return domain.EscrowLock{}, err
	}
	if err := s.appendEvent(ctx, lock, domain.EventCompleted, nil, map[string]interface{}{
		"new_owner_id": newOwnerID.String(),
	}); err != nil {
		return domain.EscrowLock{}, err
	}

	log.Info().Str("escrow_id", escrowID.String()).Str("order_id", orderID.String()).Msg("escrow completed")
	return lock, nil
}

// Release is the operator remediation for a stuck lock found by the
// integrity check. It is never invoked automatically.
func (s *Service) Release(ctx context.Context, escrowID uuid.UUID, operator, reason string) (domain.EscrowLock, error) {
	operator = strings.TrimSpace(operator)
	reason = strings.TrimSpace(reason)
	if operator == "" || reason == "" {
		return domain.EscrowLock{}, fmt.Errorf("operator and reason are required: %w", domain.ErrInvalidArgument)
	}

	var lock domain.EscrowLock
	err := database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		var err error
		lock, err = s.Get(txCtx, escrowID)
		if err != nil {
			return err
		}
		if lock.Status.Terminal() {
			return fmt.Errorf("escrow %s is %s: %w", escrowID, lock.Status, domain.ErrInvalidState)
		}
		if err := s.transition(txCtx, &lock, domain.EscrowReleased, &reason, &operator); err != nil {
			return err
		}
		if err := s.Cards.SetCustody(txCtx, lock.CardInstanceID, domain.CustodyWithOwner); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return s.appendEvent(txCtx, lock, domain.EventReleased, &operator, map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return domain.EscrowLock{}, err
	}

	log.Warn().Str("escrow_id", escrowID.String()).Str("operator", operator).Str("reason", reason).Msg("escrow released by operator")
	s.publish(ctx, lock, domain.EventReleased, reason, operator)
	return lock, nil
}

// Get returns an escrow entry in any status.
func (s *Service) Get(ctx context.Context, escrowID uuid.UUID) (domain.EscrowLock, error) {
	var lock domain.EscrowLock
	if err := database.Conn(ctx, s.DB).Where("id = ?", escrowID).First(&lock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowLock{}, fmt.Errorf("escrow %s: %w", escrowID, domain.ErrNotFound)
		}
		return domain.EscrowLock{}, fmt.Errorf("get escrow lock: %w", err)
	}
	return lock, nil
}

// ActiveForCard returns the locked escrow on a card, or nil when it is free.
func (s *Service) ActiveForCard(ctx context.Context, cardInstanceID uuid.UUID) (*domain.EscrowLock, error) {
	var lock domain.EscrowLock
	err := database.Conn(ctx, s.DB).
		Where("card_instance_id = ? AND status = ?", cardInstanceID, domain.EscrowLocked).
		First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active escrow: %w", err)
	}
	return &lock, nil
}

func (s *Service) CountLocked(ctx context.Context) (int64, error) {
	var n int64
	if err := database.Conn(ctx, s.DB).Model(&domain.EscrowLock{}).
		Where("status = ?", domain.EscrowLocked).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count locked escrows: %w", err)
	}
	return n, nil
}

// History returns the audit trail of one escrow entry, oldest first.
func (s *Service) History(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowEvent, error) {
	events := []domain.EscrowEvent{}
	if err := database.Conn(ctx, s.DB).
		Where("escrow_id = ?", escrowID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("escrow history: %w", err)
	}
	return events, nil
}

// transition moves lock out of EscrowLocked with a compare-and-set on the
// status column. Zero affected rows means another caller got there first.
func (s *Service) transition(ctx context.Context, lock *domain.EscrowLock, to domain.EscrowStatus, reason, resolvedBy *string) error {
	now := s.clk().Now()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if reason != nil {
		updates["reason"] = *reason
	}
	if resolvedBy != nil {
		updates["resolved_by"] = *resolvedBy
	}

	res := database.Conn(ctx, s.DB).
		Model(&domain.EscrowLock{}).
		Where("id = ? AND status = ?", lock.ID, domain.EscrowLocked).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update escrow status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("escrow %s is no longer locked: %w", lock.ID, domain.ErrInvalidState)
	}

	lock.Status = to
	lock.UpdatedAt = now
	lock.Reason = reason
	lock.ResolvedBy = resolvedBy
	return nil
}

func (s *Service) appendEvent(ctx context.Context, lock domain.EscrowLock, eventType domain.EscrowEventType, actor *string, data map[string]interface{}) error {
	eventData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal escrow event: %w", err)
	}
	event := domain.EscrowEvent{
		EscrowID:       lock.ID,
		CardInstanceID: lock.CardInstanceID,
		OrderID:        lock.OrderID,
		EventType:      eventType,
		Actor:          actor,
		EventData:      datatypes.JSON(eventData),
		CreatedAt:      s.clk().Now(),
	}
	if err := database.Conn(ctx, s.DB).Create(&event).Error; err != nil {
		return fmt.Errorf("append escrow event: %w", err)
	}
	return nil
}

// Publish sends the post-commit notification for a transition.
func (s *Service) Publish(ctx context.Context, lock domain.EscrowLock, eventType domain.EscrowEventType) {
	s.publish(ctx, lock, eventType, "", "")
}

func (s *Service) publish(ctx context.Context, lock domain.EscrowLock, eventType domain.EscrowEventType, reason, actor string) {
	if s.Publisher == nil {
		return
	}
	err := s.Publisher.PublishEscrowEvent(ctx, messaging.EscrowEventMessage{
		EventType:      string(eventType),
		EscrowID:       lock.ID.String(),
		CardInstanceID: lock.CardInstanceID.String(),
		OrderID:        lock.OrderID.String(),
		Reason:         reason,
		Actor:          actor,
		OccurredAt:     s.clk().Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("escrow_id", lock.ID.String()).Str("event_type", string(eventType)).Msg("escrow event not published")
	}
}

// AsTransactionFailure keeps domain outcomes as they are and marks every
// other failure of an atomic write as ErrTransactionFailure.
func AsTransactionFailure(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrNotFound, domain.ErrInvalidState, domain.ErrInvalidArgument, domain.ErrAlreadyLocked, domain.ErrTransactionFailure} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransactionFailure, err)
}
