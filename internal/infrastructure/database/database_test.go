package database

import (
	"context"
	"errors"
	"testing"

	"cardvault-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
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
	require.NoError(t, Migrate(db))
	return db
}

func TestActiveLockIndex_AllowsOneLockedRowPerCard(t *testing.T) {
	db := openTestDB(t)
	card := uuid.New()

	first := domain.EscrowLock{CardInstanceID: card, OrderID: uuid.New(), Status: domain.EscrowLocked}
	require.NoError(t, db.Create(&first).Error)

	second := domain.EscrowLock{CardInstanceID: card, OrderID: uuid.New(), Status: domain.EscrowLocked}
	err := db.Create(&second).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// resolved rows do not count
	resolved := domain.EscrowLock{CardInstanceID: card, OrderID: uuid.New(), Status: domain.EscrowUnlocked}
	require.NoError(t, db.Create(&resolved).Error)
}

func TestWithTx_RollsBackAndNests(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(txCtx context.Context) error {
		require.NoError(t, Conn(txCtx, db).Create(&domain.Order{BuyerID: uuid.New(), SellerID: uuid.New(), CardInstanceID: uuid.New(), Status: domain.OrderPending}).Error)
		return WithTx(txCtx, db, func(inner context.Context) error {
			assert.Same(t, Conn(txCtx, db), Conn(inner, db))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&domain.Order{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: escrow_locks.card_instance_id")))
	assert.False(t, IsUniqueViolation(errors.New("disk full")))
}
