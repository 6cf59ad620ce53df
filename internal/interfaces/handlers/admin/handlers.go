package admin

import (
	escrowsvc "cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/pkg/response"
	"cardvault-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// Handlers serves operator routes. Mounted behind middleware.RequireAdminKey.
type Handlers struct {
	Escrow    *escrowsvc.Service
	Integrity *integrity.Service
}

// Release POST /api/v1/admin/escrow/release: operator remediation of a stuck lock.
func (h *Handlers) Release(c *fiber.Ctx) error {
	var body struct {
		EscrowID string `json:"escrow_id"`
		Operator string `json:"operator"`
		Reason   string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	escrowID, err := validation.ParseID("escrow_id", body.EscrowID)
	if err != nil {
		return err
	}
	if body.Operator == "" {
		return response.ErrorWithCode(c, "operator is required", fiber.StatusBadRequest, response.CodeInvalidArgument)
	}
	reason, err := validation.Reason(body.Reason)
	if err != nil {
		return err
	}

	lock, err := h.Escrow.Release(c.UserContext(), escrowID, body.Operator, reason)
	if err != nil {
		return err
	}
	return response.Success(c, "Escrow released", lock, nil)
}

// IntegrityReport GET /api/v1/admin/escrow/integrity
func (h *Handlers) IntegrityReport(c *fiber.Ctx) error {
	report, err := h.Integrity.RunIntegrityCheck(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "Integrity check complete", report, fiber.Map{"by_type": report.CountByType()})
}

// History GET /api/v1/admin/escrow/:escrow_id/history
func (h *Handlers) History(c *fiber.Ctx) error {
	escrowID, err := validation.ParseID("escrow_id", c.Params("escrow_id"))
	if err != nil {
		return err
	}
	lock, err := h.Escrow.Get(c.UserContext(), escrowID)
	if err != nil {
		return err
	}
	events, err := h.Escrow.History(c.UserContext(), escrowID)
	if err != nil {
		return err
	}
	return response.Success(c, "Escrow history", fiber.Map{"escrow": lock, "events": events}, nil)
}
