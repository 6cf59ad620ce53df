package escrow

import (
	"fmt"

	escrowsvc "cardvault-backend/internal/application/escrow"
	"cardvault-backend/internal/application/integrity"
	"cardvault-backend/internal/application/lanes"
	"cardvault-backend/internal/application/sales"
	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/pkg/constants"
	"cardvault-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers serves the inventory escrow action surface. Callers are
// authorized upstream; domain errors are returned to the global error
// handler, which maps them to status codes.
type Handlers struct {
	Escrow    *escrowsvc.Service
	Lanes     *lanes.Service
	Sales     *sales.Service
	Integrity *integrity.Service
}

type actionRequest struct {
	Action         string  `json:"action"`
	CardInstanceID string  `json:"card_instance_id"`
	OrderID        string  `json:"order_id"`
	EscrowID       string  `json:"escrow_id"`
	SellerID       string  `json:"seller_id"`
	CardValue      float64 `json:"card_value"`
	Reason         string  `json:"reason"`
}

// Dispatch POST /api/v1/inventory-escrow routes on the action field.
func (h *Handlers) Dispatch(c *fiber.Ctx) error {
	var body actionRequest
	if err := c.BodyParser(&body); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidArgument)
	}
	if !constants.IsValidAction(body.Action) {
		return fmt.Errorf("unknown action %q: %w", body.Action, domain.ErrInvalidArgument)
	}

	switch body.Action {
	case constants.ActionLock:
		return h.lock(c, body)
	case constants.ActionUnlock:
		return h.unlock(c, body)
	case constants.ActionDetermineLane:
		return h.determineLane(c, body)
	case constants.ActionCompleteSale:
		return h.completeSale(c, body)
	default:
		return h.integrityCheck(c)
	}
}

func (h *Handlers) lock(c *fiber.Ctx, body actionRequest) error {
	cardID, err := validation.ParseID("card_instance_id", body.CardInstanceID)
	if err != nil {
		return err
	}
	orderID, err := validation.ParseID("order_id", body.OrderID)
	if err != nil {
		return err
	}
	lock, err := h.Escrow.Lock(c.UserContext(), cardID, orderID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "lock_id": lock.ID})
}

func (h *Handlers) unlock(c *fiber.Ctx, body actionRequest) error {
	cardID, err := validation.ParseID("card_instance_id", body.CardInstanceID)
	if err != nil {
		return err
	}
	orderID, err := validation.ParseID("order_id", body.OrderID)
	if err != nil {
		return err
	}
	reason, err := validation.Reason(body.Reason)
	if err != nil {
		return err
	}
	if _, err := h.Escrow.Unlock(c.UserContext(), cardID, orderID, reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handlers) determineLane(c *fiber.Ctx, body actionRequest) error {
	sellerID, err := validation.ParseID("seller_id", body.SellerID)
	if err != nil {
		return err
	}
	cardID, err := validation.ParseOptionalID("card_instance_id", body.CardInstanceID)
	if err != nil {
		return err
	}
	if err := validation.Amount("card_value", body.CardValue); err != nil {
		return err
	}
	d, err := h.Lanes.DetermineLane(c.UserContext(), lanes.DetermineInput{
		SellerID:       sellerID,
		CardValue:      body.CardValue,
		CardInstanceID: cardID,
	})
	if err != nil {
		return err
	}
	log.Info().Str("seller_id", sellerID.String()).Str("lane", string(d.Lane)).Msg("lane determined")
	return c.JSON(fiber.Map{
		"success":               true,
		"lane":                  d.Lane,
		"reason":                d.Reason,
		"requires_verification": d.RequiresVerification,
		"seller_trust_score":    d.SellerTrustScore,
		"instant_eligible":      d.InstantEligible,
	})
}

func (h *Handlers) completeSale(c *fiber.Ctx, body actionRequest) error {
	orderID, err := validation.ParseID("order_id", body.OrderID)
	if err != nil {
		return err
	}
	escrowID, err := validation.ParseID("escrow_id", body.EscrowID)
	if err != nil {
		return err
	}
	res, err := h.Sales.CompleteSale(c.UserContext(), orderID, escrowID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":          true,
		"order_id":         res.OrderID,
		"escrow_id":        res.EscrowID,
		"card_instance_id": res.CardInstanceID,
		"buyer_id":         res.BuyerID,
		"completed_at":     res.CompletedAt,
	})
}

func (h *Handlers) integrityCheck(c *fiber.Ctx) error {
	report, err := h.Integrity.RunIntegrityCheck(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(reportBody(report))
}

func reportBody(report domain.IntegrityReport) fiber.Map {
	issues := report.Issues
	if issues == nil {
		issues = []domain.IntegrityIssue{}
	}
	return fiber.Map{
		"total_issues": report.TotalIssues,
		"issues":       issues,
		"checked_at":   report.CheckedAt,
	}
}
