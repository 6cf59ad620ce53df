package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"
	"cardvault-backend/internal/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Ledger is the escrow ledger as seen by the orchestrator.
type Ledger interface {
	CompleteInTx(ctx context.Context, orderID, escrowID, newOwnerID uuid.UUID) (domain.EscrowLock, error)
	Publish(ctx context.Context, lock domain.EscrowLock, eventType domain.EscrowEventType)
}

// Service completes sales: escrow completion, ownership transfer to the
// buyer and order settlement commit together or not at all.
type Service struct {
	DB     *gorm.DB
	Ledger Ledger
	Clock  clock.Clock
}

type CompleteSaleResult struct {
	OrderID        uuid.UUID `json:"order_id"`
	EscrowID       uuid.UUID `json:"escrow_id"`
	CardInstanceID uuid.UUID `json:"card_instance_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (s *Service) clk() clock.Clock {
	if s.Clock == nil {
		return clock.NewSystem()
	}
	return s.Clock
}

func (s *Service) CompleteSale(ctx context.Context, orderID, escrowID uuid.UUID) (CompleteSaleResult, error) {
	if orderID == uuid.Nil || escrowID == uuid.Nil {
		return CompleteSaleResult{}, fmt.Errorf("order_id and escrow_id are required: %w", domain.ErrInvalidArgument)
	}

	var (
		result CompleteSaleResult
		lock   domain.EscrowLock
	)
	err := database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		tx := database.Conn(txCtx, s.DB)

		var order domain.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
			}
			return fmt.Errorf("get order: %w", err)
		}
		if order.Status != domain.OrderPending {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, domain.ErrInvalidState)
		}

		var err error
		lock, err = s.Ledger.CompleteInTx(txCtx, orderID, escrowID, order.BuyerID)
		if err != nil {
			return err
		}
		if lock.CardInstanceID != order.CardInstanceID {
			return fmt.Errorf("escrow %s holds card %s but order %s is for card %s: %w",
				escrowID, lock.CardInstanceID, orderID, order.CardInstanceID, domain.ErrInvalidState)
		}

		now := s.clk().Now()
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", orderID, domain.OrderPending).
			Updates(map[string]interface{}{
				"status":     domain.OrderCompleted,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("settle order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("order %s settled concurrently: %w", orderID, domain.ErrInvalidState)
		}

		result = CompleteSaleResult{
			OrderID:        orderID,
			EscrowID:       escrowID,
			CardInstanceID: lock.CardInstanceID,
			BuyerID:        order.BuyerID,
			CompletedAt:    now,
		}
		return nil
	})
	if err != nil {
		err = escrow.AsTransactionFailure(err)
		if errors.Is(err, domain.ErrInvalidState) {
			log.Warn().Str("order_id", orderID.String()).Str("escrow_id", escrowID.String()).Err(err).Msg("sale completion rejected")
		} else if errors.Is(err, domain.ErrTransactionFailure) {
			log.Error().Str("order_id", orderID.String()).Str("escrow_id", escrowID.String()).Err(err).Msg("sale completion rolled back")
		}
		return CompleteSaleResult{}, err
	}

	log.Info().Str("order_id", orderID.String()).Str("escrow_id", escrowID.String()).Str("buyer_id", result.BuyerID.String()).Msg("sale completed")
	s.Ledger.Publish(ctx, lock, domain.EventCompleted)
	return result, nil
}
