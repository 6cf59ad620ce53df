package bootstrap

import (
	"context"
	"fmt"

	"cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/application/inventory"
	"cardvault-backend/internal/application/lanes"
	"cardvault-backend/internal/application/sales"
	"cardvault-backend/internal/application/trust"
	"cardvault-backend/internal/config"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/cache"
	"cardvault-backend/internal/infrastructure/database"
	"cardvault-backend/internal/infrastructure/messaging"
	"cardvault-backend/internal/interfaces/router"
	"cardvault-backend/internal/pkg/clock"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Container holds the process-wide dependencies shared by the HTTP server
// and the operator CLI.
type Container struct {
	Config    *config.Config
	DB        *gorm.DB
	Rdb       *redis.Client
	Publisher messaging.Publisher

	Cards     *inventory.Service
	Escrow    *escrow.Service
	Lanes     *lanes.Service
	Sales     *sales.Service
	Integrity *integrity.Service
}

// Build opens the database (and migrates it), redis and the broker, then
// wires the services. Without DATABASE_URL only the health routes work.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	pub := messaging.NewPublisher(cfg.RabbitMQURL)

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, trust cache and request stats disabled")
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, escrow routes are not mounted")
		return &Container{Config: cfg, Rdb: rdb, Publisher: pub}, nil
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return Assemble(cfg, db, rdb, pub, clock.NewSystem()), nil
}

// Assemble wires the services over already-open connections. rdb may be nil.
func Assemble(cfg *config.Config, db *gorm.DB, rdb *redis.Client, pub messaging.Publisher, clk clock.Clock) *Container {
	c := &Container{Config: cfg, DB: db, Rdb: rdb, Publisher: pub}

	var scores lanes.TrustScoreProvider = &trust.GormProvider{DB: c.DB}
	if c.Rdb != nil {
		scores = &trust.CachedProvider{Next: scores, Rdb: c.Rdb, TTL: c.Config.Escrow.TrustCacheTTL}
	}

	c.Cards = &inventory.Service{DB: c.DB, Clock: clk}
	c.Escrow = &escrow.Service{DB: c.DB, Cards: c.Cards, Publisher: c.Publisher, Clock: clk}
	c.Lanes = &lanes.Service{
		Trust: scores,
		Cards: c.Cards,
		Thresholds: domain.LaneThresholds{
			TrustThreshold: c.Config.Escrow.TrustThreshold,
			ValueThreshold: c.Config.Escrow.ValueThreshold,
		},
	}
	c.Sales = &sales.Service{DB: c.DB, Ledger: c.Escrow, Clock: clk}
	c.Integrity = &integrity.Service{DB: c.DB, Clock: clk, StaleAfter: c.Config.Escrow.StaleLockAfter}
	return c
}

// Router returns the dependencies the HTTP layer mounts.
func (c *Container) Router() router.Deps {
	return router.Deps{
		DB:        c.DB,
		Rdb:       c.Rdb,
		Escrow:    c.Escrow,
		Lanes:     c.Lanes,
		Sales:     c.Sales,
		Integrity: c.Integrity,
	}
}

// Close releases the broker channel, redis and the database pool.
func (c *Container) Close() {
	if p, ok := c.Publisher.(interface{ Close() error }); ok {
		_ = p.Close()
	}
	if c.Rdb != nil {
		_ = c.Rdb.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// New creates the Fiber app for the serverless entry point (api/ imports
// this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := Build(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return router.CreateApp(cfg, c.Router()), nil
}
