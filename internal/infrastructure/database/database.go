package database

import (
	"context"
	"errors"
	"strings"

	"cardvault-backend/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ActiveLockIndex makes "at most one locked escrow per card instance" a
// storage-level guarantee. Both Postgres and SQLite support partial indexes.
const ActiveLockIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_escrow_locks_active_card
ON escrow_locks (card_instance_id) WHERE status = 'locked'`

// Open opens a GORM DB from DSN (Postgres or pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// Models lists every table owned by the escrow service.
func Models() []interface{} {
	return []interface{}{
		&domain.CardInstance{},
		&domain.EscrowLock{},
		&domain.EscrowEvent{},
		&domain.Order{},
		&domain.SellerTrustScore{},
	}
}

// Migrate creates the tables and the lock exclusivity index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return db.Exec(ActiveLockIndex).Error
}

type txKey struct{}

// WithTx runs fn inside a transaction carried by the returned context.
// Nested calls join the outer transaction.
func WithTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction in ctx, or db bound to ctx when none is open.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// IsUniqueViolation recognises duplicate-key errors from the Postgres driver,
// GORM's translated error and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
