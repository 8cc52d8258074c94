package decision

import (
	"math"

	"RiskPulse/internal/domain/models"
)

// RuleThresholds holds the cutoffs for the reason-code rules. Zero values
// are replaced by the defaults below.
type RuleThresholds struct {
	Velocity5m         int64
	Velocity1h         int64
	AmountZScore       float64
	DeviceChurn24h     int64
	IPChanges24h       int64
	MerchantVelocity1h int64
}

// DefaultRuleThresholds mirrors the shipped rule configuration.
func DefaultRuleThresholds() RuleThresholds {
	return RuleThresholds{
		Velocity5m:         5,
		Velocity1h:         20,
		AmountZScore:       3.0,
		DeviceChurn24h:     2,
		IPChanges24h:       3,
		MerchantVelocity1h: 5,
	}
}

type rule struct {
	code string
	fire func(t RuleThresholds, r *models.FeatureRecord) bool
}

// rules are evaluated in definition order; the emitted reason list preserves
// this order and carries no duplicates.
var rules = []rule{
	{models.ReasonHighVelocity5m, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.Txns5m > t.Velocity5m
	}},
	{models.ReasonHighVelocity1h, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.Txns1h > t.Velocity1h
	}},
	{models.ReasonUnusualAmount, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.ZScoreValid && math.Abs(r.AmountZScore) > t.AmountZScore
	}},
	{models.ReasonHighDeviceChurn, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.DeviceChurn24h > t.DeviceChurn24h
	}},
	{models.ReasonFrequentIPChanges, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.IPChurn24h > t.IPChanges24h
	}},
	{models.ReasonHighMerchantVelocity, func(t RuleThresholds, r *models.FeatureRecord) bool {
		return r.MerchantVel1h > t.MerchantVelocity1h
	}},
}

// Explain evaluates the rule list against a feature record. Pure and
// deterministic: identical inputs always yield the identical ordered,
// duplicate-free reason list. Cold-start users get insufficient_history
// appended regardless of other rules; a warm user with no fired rule gets
// the no_significant_indicators fallback.
func Explain(t RuleThresholds, r *models.FeatureRecord, coldStart bool) []string {
	reasons := make([]string, 0, 3)
	seen := make(map[string]struct{}, len(rules))
	for _, ru := range rules {
		if !ru.fire(t, r) {
			continue
		}
		if _, dup := seen[ru.code]; dup {
			continue
		}
		seen[ru.code] = struct{}{}
		reasons = append(reasons, ru.code)
	}
	if coldStart {
		reasons = append(reasons, models.ReasonInsufficientHistory)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, models.ReasonNoIndicators)
	}
	return reasons
}
