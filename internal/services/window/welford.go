package window

import "math"

// Welford is an incremental mean/variance accumulator. Buckets each carry
// their own accumulator so that evicting a bucket removes exactly its
// contribution; query-time folding uses the parallel combine rule.
type Welford struct {
	n    int64
	mean float64
	m2   float64
}

// Add folds one sample into the accumulator.
func (w *Welford) Add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// Merge combines two accumulators (Chan et al. parallel update).
func (w Welford) Merge(o Welford) Welford {
	if w.n == 0 {
		return o
	}
	if o.n == 0 {
		return w
	}
	n := w.n + o.n
	d := o.mean - w.mean
	mean := w.mean + d*float64(o.n)/float64(n)
	m2 := w.m2 + o.m2 + d*d*float64(w.n)*float64(o.n)/float64(n)
	return Welford{n: n, mean: mean, m2: m2}
}

// Count returns the number of samples folded in.
func (w Welford) Count() int64 { return w.n }

// Mean returns the running mean, 0 when empty.
func (w Welford) Mean() float64 { return w.mean }

// Variance returns the sample variance, 0 when fewer than two samples.
func (w Welford) Variance() float64 {
	if w.n < 2 {
		return 0
	}
	v := w.m2 / float64(w.n-1)
	if v < 0 {
		return 0
	}
	return v
}

// StdDev returns the sample standard deviation.
func (w Welford) StdDev() float64 { return math.Sqrt(w.Variance()) }

// ZScore returns the z-score of x against the accumulated window. The
// second return is false when the score is undefined (fewer than two
// samples or zero deviation); the value is then the 0 sentinel, never a
// division by zero.
func (w Welford) ZScore(x float64) (float64, bool) {
	if w.n < 2 {
		return 0, false
	}
	sd := w.StdDev()
	if sd == 0 {
		return 0, false
	}
	return (x - w.mean) / sd, true
}
