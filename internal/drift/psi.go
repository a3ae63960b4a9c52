// Package drift watches the feature distributions feeding the classifier
// and decides when to call for a retrain.
package drift

import (
	"math"
	"sort"
)

// proportionFloor keeps empty bins from blowing up the PSI logarithm.
const proportionFloor = 1e-6

// PSI computes the Population Stability Index between a baseline and a
// current sample over equal-width bins spanning both. Bin proportions are
// floored so a bin that is empty on one side contributes a large but finite
// term.
func PSI(baseline, current []float64, bins int) float64 {
	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}
	if bins <= 0 {
		bins = 10
	}

	lo, hi := rangeOf(baseline)
	clo, chi := rangeOf(current)
	if clo < lo {
		lo = clo
	}
	if chi > hi {
		hi = chi
	}
	if hi == lo {
		hi = lo + 1
	}

	baseProp := binProportions(baseline, lo, hi, bins)
	currProp := binProportions(current, lo, hi, bins)

	var psi float64
	for i := 0; i < bins; i++ {
		b := math.Max(baseProp[i], proportionFloor)
		c := math.Max(currProp[i], proportionFloor)
		psi += (c - b) * math.Log(c/b)
	}
	return psi
}

// KS computes the Kolmogorov–Smirnov statistic: the largest gap between
// the two empirical CDFs. Reported alongside PSI for context; it does not
// drive alerting.
func KS(baseline, current []float64) float64 {
	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}
	b := sortedCopy(baseline)
	c := sortedCopy(current)

	var maxGap float64
	i, j := 0, 0
	for i < len(b) && j < len(c) {
		// Consume the full run of the smaller value on both sides before
		// measuring; stepping mid-tie inflates the gap on discrete data.
		v := math.Min(b[i], c[j])
		for i < len(b) && b[i] == v {
			i++
		}
		for j < len(c) && c[j] == v {
			j++
		}
		gap := math.Abs(float64(i)/float64(len(b)) - float64(j)/float64(len(c)))
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

func rangeOf(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

func binProportions(xs []float64, lo, hi float64, bins int) []float64 {
	props := make([]float64, bins)
	width := (hi - lo) / float64(bins)
	for _, x := range xs {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		props[idx]++
	}
	for i := range props {
		props[i] /= float64(len(xs))
	}
	return props
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}
