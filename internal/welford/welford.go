// Package welford implements the O(1)-space online mean/variance
// estimator used by the evidence aggregator. No raw history is retained.
package welford

// Moments is the incremental estimator state. The zero value is ready to
// use.
type Moments struct {
	Count int64
	Mean  float64
	M2    float64
}

// Add folds one observation into the running moments.
func (m *Moments) Add(x float64) {
	m.Count++
	delta := x - m.Mean
	m.Mean += delta / float64(m.Count)
	delta2 := x - m.Mean
	m.M2 += delta * delta2
}

// Variance returns the population variance, 0 for fewer than two samples.
func (m *Moments) Variance() float64 {
	if m.Count < 2 {
		return 0
	}
	return m.M2 / float64(m.Count)
}

// Merge combines another estimator's state into m using the parallel
// variant of the update (Chan et al.), so shard-local moments can be
// combined without replaying observations.
func (m *Moments) Merge(o Moments) {
	if o.Count == 0 {
		return
	}
	if m.Count == 0 {
		*m = o
		return
	}
	n := m.Count + o.Count
	delta := o.Mean - m.Mean
	m.Mean += delta * float64(o.Count) / float64(n)
	m.M2 += o.M2 + delta*delta*float64(m.Count)*float64(o.Count)/float64(n)
	m.Count = n
}
