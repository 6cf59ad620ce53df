package domain

import "fmt"

type Lane string

const (
	LaneInstant            Lane = "instant"
	LaneEscrowVerification Lane = "escrow_verification"
)

// LaneThresholds are the platform-tuned routing parameters.
type LaneThresholds struct {
	TrustThreshold float64 // trust >= this qualifies the seller for instant settlement
	ValueThreshold float64 // value >= this always requires verification
}

// LaneDecision is computed per request and never persisted.
type LaneDecision struct {
	Lane                 Lane    `json:"lane"`
	Reason               string  `json:"reason"`
	RequiresVerification bool    `json:"requires_verification"`
	SellerTrustScore     float64 `json:"seller_trust_score"`
	InstantEligible      bool    `json:"instant_eligible"`
}

// DecideLane routes a sale. Trust and value gate independently: a high
// value card goes through verification no matter how trusted the seller is,
// and a low-trust seller goes through verification no matter how cheap the
// card is.
func DecideLane(trustScore, cardValue float64, t LaneThresholds) LaneDecision {
	trusted := trustScore >= t.TrustThreshold
	highValue := cardValue >= t.ValueThreshold

	d := LaneDecision{
		SellerTrustScore: trustScore,
		InstantEligible:  trusted,
	}
	switch {
	case trusted && !highValue:
		d.Lane = LaneInstant
		d.Reason = fmt.Sprintf("seller trust %.0f meets threshold %.0f and card value %.2f is below %.2f",
			trustScore, t.TrustThreshold, cardValue, t.ValueThreshold)
	case !trusted && highValue:
		d.Lane = LaneEscrowVerification
		d.Reason = fmt.Sprintf("seller trust %.0f is below threshold %.0f and card value %.2f reaches %.2f",
			trustScore, t.TrustThreshold, cardValue, t.ValueThreshold)
	case !trusted:
		d.Lane = LaneEscrowVerification
		d.Reason = fmt.Sprintf("seller trust %.0f is below threshold %.0f", trustScore, t.TrustThreshold)
	default:
		d.Lane = LaneEscrowVerification
		d.Reason = fmt.Sprintf("card value %.2f reaches verification threshold %.2f", cardValue, t.ValueThreshold)
	}
	d.RequiresVerification = d.Lane == LaneEscrowVerification
	return d
}
