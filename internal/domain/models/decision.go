package models

import "time"

// Outcome is the enumerated decision for a scored user.
type Outcome string

const (
	OutcomeAllow  Outcome = "allow"
	OutcomeStepUp Outcome = "step_up"
	OutcomeBlock  Outcome = "block"
)

// ParseOutcome maps a configuration string to an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case OutcomeAllow, OutcomeStepUp, OutcomeBlock:
		return Outcome(s), true
	}
	return "", false
}

// Reason codes emitted by the decision engine, in rule-definition order.
const (
	ReasonHighVelocity5m       = "high_velocity_5m"
	ReasonHighVelocity1h       = "high_velocity_1h"
	ReasonUnusualAmount        = "unusual_amount"
	ReasonHighDeviceChurn      = "high_device_churn"
	ReasonFrequentIPChanges    = "frequent_ip_changes"
	ReasonHighMerchantVelocity = "high_merchant_velocity"
	ReasonInsufficientHistory  = "insufficient_history"
	ReasonScorerUnavailable    = "scorer_unavailable"
	ReasonNoIndicators         = "no_significant_indicators"
)

// Decision is the output value object of one prediction. It is not persisted
// by the core; the audit sink receives a copy on a best-effort basis.
type Decision struct {
	UserID    string    `json:"user_id"`
	RiskScore float64   `json:"risk_score"`
	Outcome   Outcome   `json:"decision"`
	Reasons   []string  `json:"reasons"`
	ColdStart bool      `json:"cold_start,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	ScoredAt  time.Time `json:"scored_at"`
}
