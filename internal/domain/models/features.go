package models

import (
	"fmt"
	"strconv"
	"time"
)

// Feature store hash field names. The store is a flat keyed hash so that
// counters can be incremented per field and gauges overwritten atomically.
const (
	FieldTxns5m            = "txns_last_5m"
	FieldTxns1h            = "txns_last_1h"
	FieldTxns24h           = "txns_last_24h"
	FieldAvgAmount1h       = "avg_amount_1h"
	FieldMaxAmount24h      = "max_amount_24h"
	FieldAmountMean24h     = "amount_mean_24h"
	FieldAmountStdDev24h   = "amount_stddev_24h"
	FieldAmountZScore      = "amount_zscore"
	FieldZScoreValid       = "amount_zscore_valid"
	FieldDeviceChurn5m     = "device_churn_5m"
	FieldDeviceChurn24h    = "device_churn_24h"
	FieldIPChurn24h        = "ip_churn_24h"
	FieldCountryChurn24h   = "country_churn_24h"
	FieldMerchantVel1h     = "merchant_velocity_1h"
	FieldEventsTotal       = "events_total"
	FieldAmountTotal       = "amount_total"
	FieldLastEventID       = "last_event_id"
	FieldLastEventTS       = "last_event_ts"
	FieldUpdatedAt         = "last_feature_update_ts"
	FieldPassthroughPrefix = "pt_"
)

// FeatureRecord is the mutable per-user feature state shared through the
// store. Window statistics cover exactly the events inside each horizon with
// no event applied twice.
type FeatureRecord struct {
	UserID string

	Txns5m  int64
	Txns1h  int64
	Txns24h int64

	AvgAmount1h     float64
	MaxAmount24h    float64
	AmountMean24h   float64
	AmountStdDev24h float64

	// AmountZScore is the z-score of the most recent amount against the 24h
	// window. ZScoreValid is false when fewer than two samples exist or the
	// window variance is zero; the score is then the 0 sentinel.
	AmountZScore float64
	ZScoreValid  bool

	DeviceChurn5m   int64
	DeviceChurn24h  int64
	IPChurn24h      int64
	CountryChurn24h int64
	MerchantVel1h   int64

	// Lifetime commutative counters, maintained by per-field increments.
	EventsTotal int64
	AmountTotal float64

	Passthrough PassthroughFeatures

	LastEventID string
	LastEventTS time.Time
	UpdatedAt   time.Time
}

// FeatureDelta is one atomic partial update. Inc fields are commutative and
// survive write races; Set fields are snapshot gauges owned by the single
// partition owner; the last-applied pair is guarded by compare-and-set so a
// stale writer cannot roll ordering backwards.
type FeatureDelta struct {
	Inc map[string]float64
	Set map[string]string

	LastEventID string
	LastEventTS time.Time
}

// ToFields flattens the record into the stored hash layout.
func (r *FeatureRecord) ToFields() map[string]string {
	f := map[string]string{
		FieldTxns5m:          strconv.FormatInt(r.Txns5m, 10),
		FieldTxns1h:          strconv.FormatInt(r.Txns1h, 10),
		FieldTxns24h:         strconv.FormatInt(r.Txns24h, 10),
		FieldAvgAmount1h:     formatFloat(r.AvgAmount1h),
		FieldMaxAmount24h:    formatFloat(r.MaxAmount24h),
		FieldAmountMean24h:   formatFloat(r.AmountMean24h),
		FieldAmountStdDev24h: formatFloat(r.AmountStdDev24h),
		FieldAmountZScore:    formatFloat(r.AmountZScore),
		FieldZScoreValid:     strconv.FormatBool(r.ZScoreValid),
		FieldDeviceChurn5m:   strconv.FormatInt(r.DeviceChurn5m, 10),
		FieldDeviceChurn24h:  strconv.FormatInt(r.DeviceChurn24h, 10),
		FieldIPChurn24h:      strconv.FormatInt(r.IPChurn24h, 10),
		FieldCountryChurn24h: strconv.FormatInt(r.CountryChurn24h, 10),
		FieldMerchantVel1h:   strconv.FormatInt(r.MerchantVel1h, 10),
		FieldLastEventID:     r.LastEventID,
		FieldLastEventTS:     strconv.FormatInt(r.LastEventTS.UnixMilli(), 10),
		FieldUpdatedAt:       strconv.FormatInt(r.UpdatedAt.UnixMilli(), 10),
	}
	for i, v := range r.Passthrough {
		f[FieldPassthroughPrefix+strconv.Itoa(i)] = formatFloat(v)
	}
	return f
}

// FeatureRecordFromFields rebuilds a record from the stored hash layout.
// Unknown fields are ignored; absent fields keep zero values.
func FeatureRecordFromFields(userID string, fields map[string]string) (*FeatureRecord, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty feature record for user %s", userID)
	}
	r := &FeatureRecord{UserID: userID}
	r.Txns5m = parseInt(fields[FieldTxns5m])
	r.Txns1h = parseInt(fields[FieldTxns1h])
	r.Txns24h = parseInt(fields[FieldTxns24h])
	r.AvgAmount1h = parseFloat(fields[FieldAvgAmount1h])
	r.MaxAmount24h = parseFloat(fields[FieldMaxAmount24h])
	r.AmountMean24h = parseFloat(fields[FieldAmountMean24h])
	r.AmountStdDev24h = parseFloat(fields[FieldAmountStdDev24h])
	r.AmountZScore = parseFloat(fields[FieldAmountZScore])
	r.ZScoreValid = fields[FieldZScoreValid] == "true"
	r.DeviceChurn5m = parseInt(fields[FieldDeviceChurn5m])
	r.DeviceChurn24h = parseInt(fields[FieldDeviceChurn24h])
	r.IPChurn24h = parseInt(fields[FieldIPChurn24h])
	r.CountryChurn24h = parseInt(fields[FieldCountryChurn24h])
	r.MerchantVel1h = parseInt(fields[FieldMerchantVel1h])
	r.EventsTotal = parseInt(fields[FieldEventsTotal])
	r.AmountTotal = parseFloat(fields[FieldAmountTotal])
	r.LastEventID = fields[FieldLastEventID]
	if ms := parseInt(fields[FieldLastEventTS]); ms > 0 {
		r.LastEventTS = time.UnixMilli(ms).UTC()
	}
	if ms := parseInt(fields[FieldUpdatedAt]); ms > 0 {
		r.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	for i := 0; i < PassthroughLen; i++ {
		r.Passthrough[i] = parseFloat(fields[FieldPassthroughPrefix+strconv.Itoa(i)])
	}
	return r, nil
}

// ColdRecord returns the neutral-default record used when a user has no or
// expired feature history: zero counts and the undefined z-score sentinel.
func ColdRecord(userID string) *FeatureRecord {
	return &FeatureRecord{UserID: userID}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
