package inventory

import (
	"context"
	"errors"
	"fmt"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"
	"cardvault-backend/internal/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the card instance store. Every method joins the transaction
// carried by ctx, if any.
type Service struct {
	DB    *gorm.DB
	Clock clock.Clock
}

// CreateInput describes a card entering tracked inventory (grading intake,
// listing creation).
type CreateInput struct {
	OwnerID       uuid.UUID
	ValueSnapshot float64
	Category      string
	Series        string
}

func (s *Service) clk() clock.Clock {
	if s.Clock == nil {
		return clock.NewSystem()
	}
	return s.Clock
}

// Get returns the instance whether active or not.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.CardInstance, error) {
	var card domain.CardInstance
	err := database.Conn(ctx, s.DB).Where("id = ?", id).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CardInstance{}, fmt.Errorf("card instance %s: %w", id, domain.ErrNotFound)
		}
		return domain.CardInstance{}, fmt.Errorf("get card instance: %w", err)
	}
	return card, nil
}

func (s *Service) ListActiveForOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.CardInstance, error) {
	cards := []domain.CardInstance{}
	err := database.Conn(ctx, s.DB).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Order("created_at ASC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("list active card instances: %w", err)
	}
	return cards, nil
}

// TransferOwnership moves an active instance to newOwnerID. It does not touch
// escrow state; callers sequence it with the ledger.
func (s *Service) TransferOwnership(ctx context.Context, id, newOwnerID uuid.UUID) error {
	if newOwnerID == uuid.Nil {
		return fmt.Errorf("new owner id is required: %w", domain.ErrInvalidArgument)
	}
	res := database.Conn(ctx, s.DB).
		Model(&domain.CardInstance{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"owner_id":   newOwnerID,
			"updated_at": s.clk().Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("transfer ownership: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("active card instance %s: %w", id, domain.ErrNotFound)
	}
	log.Info().Str("card_instance_id", id.String()).Str("new_owner_id", newOwnerID.String()).Msg("card ownership transferred")
	return nil
}

// SetCustody records where the physical card sits.
func (s *Service) SetCustody(ctx context.Context, id uuid.UUID, custody domain.CustodyState) error {
	res := database.Conn(ctx, s.DB).
		Model(&domain.CardInstance{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"custody":    custody,
			"updated_at": s.clk().Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("set custody: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("card instance %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// HoldInEscrow moves an active card into escrow custody. The conditional
// update takes the row lock, so it serialises against Deactivate.
func (s *Service) HoldInEscrow(ctx context.Context, id uuid.UUID) error {
	res := database.Conn(ctx, s.DB).
		Model(&domain.CardInstance{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"custody":    domain.CustodyInEscrow,
			"updated_at": s.clk().Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("hold card in escrow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("active card instance %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.CardInstance, error) {
	if in.OwnerID == uuid.Nil {
		return domain.CardInstance{}, fmt.Errorf("owner id is required: %w", domain.ErrInvalidArgument)
	}
	if in.ValueSnapshot < 0 {
		return domain.CardInstance{}, fmt.Errorf("value snapshot must not be negative: %w", domain.ErrInvalidArgument)
	}
	now := s.clk().Now()
	card := domain.CardInstance{
		OwnerID:       in.OwnerID,
		Active:        true,
		Custody:       domain.CustodyWithOwner,
		ValueSnapshot: in.ValueSnapshot,
		Category:      in.Category,
		Series:        in.Series,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := database.Conn(ctx, s.DB).Create(&card).Error; err != nil {
		return domain.CardInstance{}, fmt.Errorf("create card instance: %w", err)
	}
	return card, nil
}

// Deactivate soft-deletes a withdrawn instance. A card held in escrow cannot
// be withdrawn until the lock is resolved.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return database.WithTx(ctx, s.DB, func(txCtx context.Context) error {
		tx := database.Conn(txCtx, s.DB)

		var locked int64
		if err := tx.Model(&domain.EscrowLock{}).
			Where("card_instance_id = ? AND status = ?", id, domain.EscrowLocked).
			Count(&locked).Error; err != nil {
			return fmt.Errorf("count active locks: %w", err)
		}
		if locked > 0 {
			return fmt.Errorf("card instance %s is held in escrow: %w", id, domain.ErrAlreadyLocked)
		}

		res := tx.Model(&domain.CardInstance{}).
			Where("id = ? AND active = ? AND custody = ?", id, true, domain.CustodyWithOwner).
			Updates(map[string]interface{}{
				"active":     false,
				"updated_at": s.clk().Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("deactivate card instance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			card, err := s.Get(txCtx, id)
			if err != nil {
				return err
			}
			if !card.Active {
				return fmt.Errorf("active card instance %s: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("card instance %s is in escrow custody: %w", id, domain.ErrAlreadyLocked)
		}
		return nil
	})
}
