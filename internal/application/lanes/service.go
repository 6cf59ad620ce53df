package lanes

import (
	"context"
	"fmt"

	"cardvault-backend/internal/domain"

	"github.com/google/uuid"
)

// TrustScoreProvider supplies a seller's current 0-100 trust score.
type TrustScoreProvider interface {
	TrustScore(ctx context.Context, sellerID uuid.UUID) (float64, error)
}

// CardReader resolves a card's value snapshot when the caller did not
// supply a value.
type CardReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.CardInstance, error)
}

// Service determines the settlement lane. It only reads; it is safe to call
// as a preview before any lock is taken.
type Service struct {
	Trust      TrustScoreProvider
	Cards      CardReader
	Thresholds domain.LaneThresholds
}

type DetermineInput struct {
	SellerID       uuid.UUID
	CardValue      float64
	CardInstanceID uuid.UUID
}

func (s *Service) DetermineLane(ctx context.Context, in DetermineInput) (domain.LaneDecision, error) {
	if in.SellerID == uuid.Nil {
		return domain.LaneDecision{}, fmt.Errorf("seller_id is required: %w", domain.ErrInvalidArgument)
	}
	if in.CardValue < 0 {
		return domain.LaneDecision{}, fmt.Errorf("card_value must not be negative: %w", domain.ErrInvalidArgument)
	}

	value := in.CardValue
	if value == 0 && in.CardInstanceID != uuid.Nil && s.Cards != nil {
		card, err := s.Cards.Get(ctx, in.CardInstanceID)
		if err != nil {
			return domain.LaneDecision{}, err
		}
		value = card.ValueSnapshot
	}

	score, err := s.Trust.TrustScore(ctx, in.SellerID)
	if err != nil {
		return domain.LaneDecision{}, fmt.Errorf("seller trust score: %w", err)
	}

	return domain.DecideLane(score, value, s.Thresholds), nil
}
