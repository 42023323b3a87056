package analytics

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}

	return sum / float64(len(xs))
}

// stdev is the sample standard deviation; 0 for fewer than two values.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}

	m := mean(xs)

	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	return percentile(xs, 50)
}

// percentile computes the p-th percentile with linear interpolation
// between closest ranks.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// olsSlope fits y = m*x + b over ys with x as the sample index and returns
// the slope m.
func olsSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n == 0 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64

	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denom
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))

	return math.Round(v*scale) / scale
}

func round2(v float64) float64 { return roundTo(v, 2) }
func round3(v float64) float64 { return roundTo(v, 3) }
func round4(v float64) float64 { return roundTo(v, 4) }

// lastN returns the trailing n elements of xs (all of xs when shorter).
func lastN(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}

	return xs[len(xs)-n:]
}

// span returns xs[from:to] with python-style negative indices, clamped to
// the slice bounds.
func span(xs []float64, from, to int) []float64 {
	if from < 0 {
		from += len(xs)
	}

	if to < 0 {
		to += len(xs)
	}

	from = max(0, min(from, len(xs)))
	to = max(from, min(to, len(xs)))

	return xs[from:to]
}

func tagSet(groups ...[]string) map[string]bool {
	set := make(map[string]bool)

	for _, group := range groups {
		for _, tag := range group {
			set[tag] = true
		}
	}

	return set
}
