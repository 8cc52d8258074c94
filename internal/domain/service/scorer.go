package service

import "context"

// Scorer is the opaque risk model: a pure function from an ordered feature
// vector to a score in [0,1]. The schema version travels with every call so
// a vector-layout change is detected instead of silently mis-scored.
type Scorer interface {
	Score(ctx context.Context, vector []float64, schemaVersion string) (float64, error)
	Health(ctx context.Context) error
}
