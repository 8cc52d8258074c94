package models

// Requests for the risk HTTP endpoints. Defined in domain for consistency and reuse.

// PredictRequest scores one user. Passthrough model features are optional;
// when omitted the values stored with the user's feature record are used.
type PredictRequest struct {
	UserID      string               `json:"user_id" validate:"required"`
	Passthrough *PassthroughFeatures `json:"model_features,omitempty"`
}

// IngestRequest publishes one transaction event to the stream.
type IngestRequest struct {
	EventID    string  `json:"event_id" validate:"required"`
	TS         string  `json:"ts" validate:"required"`
	UserID     string  `json:"user_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"gte=0"`
	Currency   string  `json:"currency" validate:"required,len=3"`
	Country    string  `json:"country" validate:"required,len=2"`
	DeviceID   string  `json:"device_id" validate:"required"`
	IP         string  `json:"ip" validate:"required,ip"`
	MerchantID string  `json:"merchant_id" validate:"required"`

	Model PassthroughFeatures `json:"model_features"`
}

// IngestResponse acknowledges a published event.
type IngestResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}
