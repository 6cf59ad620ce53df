package router

import (
	"net/http"

	escrowsvc "cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/application/lanes"
	"cardvault-backend/internal/application/sales"
	"cardvault-backend/internal/config"
	adminhandler "cardvault-backend/internal/interfaces/handlers/admin"
	escrowhandler "cardvault-backend/internal/interfaces/handlers/escrow"
	healthhandler "cardvault-backend/internal/interfaces/handlers/health"
	"cardvault-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the wired services the router mounts. A nil DB leaves only the
// health routes.
type Deps struct {
	DB        *gorm.DB
	Rdb       *redis.Client
	Escrow    *escrowsvc.Service
	Lanes     *lanes.Service
	Sales     *sales.Service
	Integrity *integrity.Service
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{AllowedSuffix: cfg.FrontendURLEndsWith}))
	app.Use(middleware.HealthMarker(deps.Rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{Rdb: deps.Rdb, AdminKeyHash: cfg.AdminKeyHash}
	if deps.DB != nil {
		hh.DB = &gormDBPinger{db: deps.DB}
	}
	if deps.Escrow != nil {
		hh.Escrows = deps.Escrow
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)

	if deps.DB == nil {
		return app
	}

	eh := &escrowhandler.Handlers{
		Escrow:    deps.Escrow,
		Lanes:     deps.Lanes,
		Sales:     deps.Sales,
		Integrity: deps.Integrity,
	}
	app.Post("/api/v1/inventory-escrow", middleware.RequireServiceKey(cfg.ServiceKey), eh.Dispatch)

	ah := &adminhandler.Handlers{Escrow: deps.Escrow, Integrity: deps.Integrity}
	ag := app.Group("/api/v1/admin/escrow", middleware.RequireAdminKey(cfg.AdminKeyHash))
	ag.Post("/release", ah.Release)
	ag.Get("/integrity", ah.IntegrityReport)
	ag.Get("/:escrow_id/history", ah.History)

	return app
}

// Handler adapts app for net/http hosts such as the serverless entry point.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
