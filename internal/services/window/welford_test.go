package window

import (
	"math"
	"testing"
)

func TestWelfordSingleSampleSentinel(t *testing.T) {
	var w Welford
	w.Add(500)

	z, ok := w.ZScore(500)
	if ok {
		t.Fatalf("expected undefined z-score with one sample")
	}
	if z != 0 {
		t.Fatalf("expected sentinel 0, got %v", z)
	}
}

func TestWelfordIdenticalSamples(t *testing.T) {
	var w Welford
	w.Add(50)
	w.Add(50)

	if v := w.Variance(); v != 0 {
		t.Fatalf("expected zero variance, got %v", v)
	}
	// zero deviation always resolves to the sentinel with the
	// insufficient-history flag, whether or not the amount matches
	z, ok := w.ZScore(50)
	if ok || z != 0 {
		t.Fatalf("expected sentinel for equal amount, got z=%v ok=%v", z, ok)
	}
	z, ok = w.ZScore(51)
	if ok || z != 0 {
		t.Fatalf("expected sentinel for diverging amount, got z=%v ok=%v", z, ok)
	}
}

func TestWelfordKnownVariance(t *testing.T) {
	var w Welford
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Add(x)
	}
	if got := w.Mean(); got != 5 {
		t.Fatalf("mean: got %v want 5", got)
	}
	// sample variance of the classic series is 32/7
	want := 32.0 / 7.0
	if got := w.Variance(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("variance: got %v want %v", got, want)
	}
}

func TestWelfordMergeEqualsWholeSeries(t *testing.T) {
	xs := []float64{1.5, 2.25, 100, 3, 7.75, 0.5, 42, 13}

	var whole Welford
	for _, x := range xs {
		whole.Add(x)
	}

	var left, right Welford
	for _, x := range xs[:3] {
		left.Add(x)
	}
	for _, x := range xs[3:] {
		right.Add(x)
	}
	merged := left.Merge(right)

	if merged.Count() != whole.Count() {
		t.Fatalf("count: got %d want %d", merged.Count(), whole.Count())
	}
	if math.Abs(merged.Mean()-whole.Mean()) > 1e-9 {
		t.Fatalf("mean: got %v want %v", merged.Mean(), whole.Mean())
	}
	if math.Abs(merged.Variance()-whole.Variance()) > 1e-9 {
		t.Fatalf("variance: got %v want %v", merged.Variance(), whole.Variance())
	}
}

func TestWelfordMergeEmpty(t *testing.T) {
	var a, b Welford
	a.Add(3)
	a.Add(5)

	if got := a.Merge(b); got.Count() != 2 || got.Mean() != 4 {
		t.Fatalf("merge with empty changed stats: %+v", got)
	}
	if got := b.Merge(a); got.Count() != 2 || got.Mean() != 4 {
		t.Fatalf("empty merge lost stats: %+v", got)
	}
}
