package constants

// Actions accepted by POST /api/v1/inventory-escrow.
const (
	ActionLock           = "lock"
	ActionUnlock         = "unlock"
	ActionDetermineLane  = "determine_lane"
	ActionCompleteSale   = "complete_sale"
	ActionIntegrityCheck = "integrity_check"
)

// ValidActions is the set of action discriminators the escrow surface understands.
var ValidActions = []string{ActionLock, ActionUnlock, ActionDetermineLane, ActionCompleteSale, ActionIntegrityCheck}

// IsValidAction returns true if action is one of ValidActions.
func IsValidAction(action string) bool {
	for _, a := range ValidActions {
		if a == action {
			return true
		}
	}
	return false
}

// Unlock reason codes used by the platform. Unlock accepts any non-empty
// reason; these are the ones the marketplace sends today.
const (
	ReasonBuyerCancelled     = "buyer_cancelled"
	ReasonPaymentFailed      = "payment_failed"
	ReasonVerificationFailed = "verification_failed"
	ReasonSellerWithdrew     = "seller_withdrew"
)

// MaxReasonLength bounds free-text unlock and release reasons.
const MaxReasonLength = 500
