package decision

import "RiskPulse/internal/domain/models"

// SchemaVersion names the vector layout below. The order is a contract with
// the trained scorer: any change here must bump the version, and the
// configured version must match at startup or the service refuses to run.
const SchemaVersion = "v2"

// VectorLen is the fixed feature vector length: the passthrough model fields
// followed by the behavioral window features.
const VectorLen = models.PassthroughLen + 13

// BuildVector assembles the fixed-order numeric vector for scoring.
// Passthrough fields come first (V1..V28, Amount_normalized), then the
// behavioral features in schema order. Deterministic: the same record always
// produces the same vector.
func BuildVector(r *models.FeatureRecord) []float64 {
	v := make([]float64, 0, VectorLen)
	v = append(v, r.Passthrough[:]...)
	v = append(v,
		float64(r.Txns5m),
		float64(r.Txns1h),
		float64(r.Txns24h),
		r.AvgAmount1h,
		r.MaxAmount24h,
		r.AmountMean24h,
		r.AmountStdDev24h,
		r.AmountZScore,
		float64(r.DeviceChurn5m),
		float64(r.DeviceChurn24h),
		float64(r.IPChurn24h),
		float64(r.CountryChurn24h),
		float64(r.MerchantVel1h),
	)
	return v
}
