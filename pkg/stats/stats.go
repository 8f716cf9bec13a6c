// Package stats implements the descriptive statistics and detector math used
// by the insight synthesizer. All functions are pure and allocation-light.
package stats

import (
	"errors"
	"math"
	"sort"
)

// ErrInsufficientData is returned when a computation needs more samples than
// were provided.
var ErrInsufficientData = errors.New("insufficient data")

// Mean returns the arithmetic mean of xs. Returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation of xs (n-1 denominator).
// Returns 0 for fewer than two samples.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Skewness returns the moment coefficient of skewness of xs.
// Returns 0 when the distribution is degenerate or has fewer than 3 samples.
func Skewness(xs []float64) float64 {
	n := len(xs)
	if n < 3 {
		return 0
	}
	mean := Mean(xs)
	var m2, m3 float64
	for _, x := range xs {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	if m2 == 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// Quartiles returns Q1, Q2 (median) and Q3 of xs using linear interpolation
// between closest ranks. xs need not be sorted.
func Quartiles(xs []float64) (q1, q2, q3 float64, err error) {
	if len(xs) < 2 {
		return 0, 0, 0, ErrInsufficientData
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return quantile(sorted, 0.25), quantile(sorted, 0.5), quantile(sorted, 0.75), nil
}

// quantile computes the q-th quantile of sorted data by linear interpolation.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Pearson returns the Pearson correlation coefficient between xs and ys.
// Returns ErrInsufficientData for fewer than two pairs or mismatched lengths,
// and r=0 when either series is constant.
func Pearson(xs, ys []float64) (float64, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, ErrInsufficientData
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, nil
	}
	return sxy / math.Sqrt(sxx*syy), nil
}

// RegressionResult holds the output of a simple linear regression.
type RegressionResult struct {
	Slope     float64
	Intercept float64
	R         float64 // correlation coefficient; R*R is the fit quality
}

// Linregress fits y = slope*x + intercept by least squares.
func Linregress(xs, ys []float64) (RegressionResult, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return RegressionResult{}, ErrInsufficientData
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - mx
		sxy += dx * (ys[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return RegressionResult{}, ErrInsufficientData
	}
	slope := sxy / sxx
	r, err := Pearson(xs, ys)
	if err != nil {
		return RegressionResult{}, err
	}
	return RegressionResult{
		Slope:     slope,
		Intercept: my - slope*mx,
		R:         r,
	}, nil
}

// IQRBounds returns the outlier fences [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func IQRBounds(xs []float64) (lower, upper float64, err error) {
	q1, _, q3, err := Quartiles(xs)
	if err != nil {
		return 0, 0, err
	}
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, nil
}

// Clamp01 clips v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
