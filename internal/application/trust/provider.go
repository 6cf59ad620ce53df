package trust

import (
	"context"
	"errors"
	"fmt"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormProvider reads scores synced into seller_trust_scores by the external
// scoring service. Sellers without a score are treated as untrusted (0).
type GormProvider struct {
	DB *gorm.DB
}

func (p *GormProvider) TrustScore(ctx context.Context, sellerID uuid.UUID) (float64, error) {
	var row domain.SellerTrustScore
	err := database.Conn(ctx, p.DB).Where("seller_id = ?", sellerID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read trust score: %w", err)
	}
	return clamp(row.Score), nil
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
