package welford

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func batchMoments(xs []float64) (mean, variance float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, ss / float64(len(xs))
}

func TestMoments_MatchesBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 2, 3, 10, 100, 10000} {
		xs := make([]float64, n)
		var m Moments
		for i := range xs {
			xs[i] = rng.Float64()
			m.Add(xs[i])
		}
		mean, variance := batchMoments(xs)
		assert.InDelta(t, mean, m.Mean, 1e-9, "mean n=%d", n)
		assert.InDelta(t, variance, m.Variance(), 1e-9, "variance n=%d", n)
	}
}

func TestMoments_SingleObservation(t *testing.T) {
	var m Moments
	m.Add(0.9)
	assert.EqualValues(t, 1, m.Count)
	assert.InDelta(t, 0.9, m.Mean, 1e-12)
	assert.Zero(t, m.Variance())
}

func TestMoments_ConstantSeries(t *testing.T) {
	var m Moments
	for i := 0; i < 50; i++ {
		m.Add(0.85)
	}
	assert.InDelta(t, 0.85, m.Mean, 1e-12)
	assert.InDelta(t, 0, m.Variance(), 1e-12)
}

func TestMoments_Merge(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	xs := make([]float64, 1000)
	var whole, left, right Moments
	for i := range xs {
		xs[i] = rng.NormFloat64()
		whole.Add(xs[i])
		if i < 400 {
			left.Add(xs[i])
		} else {
			right.Add(xs[i])
		}
	}
	left.Merge(right)
	assert.Equal(t, whole.Count, left.Count)
	assert.InDelta(t, whole.Mean, left.Mean, 1e-9)
	assert.InDelta(t, whole.Variance(), left.Variance(), 1e-9)
}

func TestMoments_MergeEmpty(t *testing.T) {
	var a, b Moments
	a.Add(0.5)
	a.Merge(b)
	assert.EqualValues(t, 1, a.Count)

	var c Moments
	c.Merge(a)
	assert.EqualValues(t, 1, c.Count)
	assert.InDelta(t, 0.5, c.Mean, 1e-12)
}
