package testutil

import (
	"testing"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database. A single connection
// keeps every goroutine on the same in-memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openRaw(t)
	require.NoError(t, database.Migrate(db))
	return db
}

// NewDBWithoutLockIndex migrates tables but skips the exclusivity index, so
// tests can seed states the live path can never produce.
func NewDBWithoutLockIndex(t *testing.T) *gorm.DB {
	t.Helper()
	db := openRaw(t)
	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

func openRaw(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// InsertCard creates an active card owned by ownerID.
func InsertCard(t *testing.T, db *gorm.DB, ownerID uuid.UUID, value float64) domain.CardInstance {
	t.Helper()
	card := domain.CardInstance{
		OwnerID:       ownerID,
		Active:        true,
		Custody:       domain.CustodyWithOwner,
		ValueSnapshot: value,
		Category:      "pokemon",
		Series:        "base-set",
	}
	require.NoError(t, db.Create(&card).Error)
	return card
}

// InsertOrder creates a pending order for card.
func InsertOrder(t *testing.T, db *gorm.DB, card domain.CardInstance, buyerID uuid.UUID) domain.Order {
	t.Helper()
	order := domain.Order{
		BuyerID:        buyerID,
		SellerID:       card.OwnerID,
		CardInstanceID: card.ID,
		Amount:         card.ValueSnapshot,
		Status:         domain.OrderPending,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}
