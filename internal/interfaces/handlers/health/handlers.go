package health

import (
	"context"
	"fmt"
	"strconv"
	"time"

	healthsvc "cardvault-backend/internal/application/health"
	"cardvault-backend/internal/middleware"
	"cardvault-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb          *redis.Client
	DB           healthsvc.DBPinger
	Escrows      healthsvc.EscrowCounter
	AdminKeyHash string
}

// Reset clears health stats in Redis. Requires query key matching ADMIN_KEY_HASH.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	if !middleware.AdminKeyMatches(h.AdminKeyHash, c.Query("key")) {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if h.Rdb == nil {
		return response.Error(c, "Redis is not configured", fiber.StatusServiceUnavailable, nil)
	}
	ctx := context.Background()
	keys := []string{middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime, middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq}
	if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset health stats: %w", err)
	}
	if err := h.Rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("reset health start time: %w", err)
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns service status, runtime, traffic, escrow and dependency data.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.UserContext(), h.Rdb, h.DB, h.Escrows)
	out := map[string]interface{}{
		"service":      "cardvault-escrow-api",
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
	}
	if result.Escrow != nil {
		out["escrow"] = result.Escrow
	}
	return c.JSON(out)
}
