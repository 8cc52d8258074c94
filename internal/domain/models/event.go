package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PassthroughLen is the number of static model features carried on every
// event: V1..V28 plus the pre-normalized amount. The trained scorer was
// fitted against exactly this layout.
const PassthroughLen = 29

// PassthroughFeatures holds the static model inputs (V1..V28, Amount_normalized)
// that ride the event unchanged. They are not computed here, only forwarded.
type PassthroughFeatures [PassthroughLen]float64

// MarshalJSON emits the flat wire layout: {"V1": ..., ..., "V28": ..., "Amount_normalized": ...}.
func (p PassthroughFeatures) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, PassthroughLen)
	for i := 0; i < PassthroughLen-1; i++ {
		m[fmt.Sprintf("V%d", i+1)] = p[i]
	}
	m["Amount_normalized"] = p[PassthroughLen-1]
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat wire layout. Missing fields default to 0.
func (p *PassthroughFeatures) UnmarshalJSON(b []byte) error {
	m := make(map[string]float64, PassthroughLen)
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("passthrough features: %w", err)
	}
	for i := 0; i < PassthroughLen-1; i++ {
		p[i] = m[fmt.Sprintf("V%d", i+1)]
	}
	p[PassthroughLen-1] = m["Amount_normalized"]
	return nil
}

// TransactionEvent is the immutable fact consumed from the event log.
// Delivery is at-least-once; EventID is the idempotency key.
type TransactionEvent struct {
	EventID    string              `json:"event_id"`
	TS         time.Time           `json:"ts"`
	UserID     string              `json:"user_id"`
	Amount     float64             `json:"amount"`
	Currency   string              `json:"currency"`
	Country    string              `json:"country"`
	DeviceID   string              `json:"device_id"`
	IP         string              `json:"ip"`
	MerchantID string              `json:"merchant_id"`
	Model      PassthroughFeatures `json:"model_features"`
}

// Validate checks the minimal invariants before an event enters the windows.
func (e *TransactionEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.EventID == "" {
		return fmt.Errorf("event_id is empty")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is empty")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is zero")
	}
	if e.Amount < 0 {
		return fmt.Errorf("amount is negative")
	}
	return nil
}
