// Package stats holds the pure statistics used to reduce raw samples into KPIs.
// Nothing here performs I/O or mutates its inputs.
package stats

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Median returns the middle value of samples, or the mean of the two middle
// values for an even count. Empty input yields 0.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(samples)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Quantile linearly interpolates between adjacent ranks at position (n-1)*q.
// q is clamped to [0, 1]. Empty input yields 0.
func Quantile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return quantileSorted(sortedCopy(samples), q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if math.IsNaN(q) || q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	pos := float64(n-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Sum adds samples in order.
func Sum(samples []float64) float64 {
	total := 0.0
	for _, v := range samples {
		total += v
	}
	return total
}

// Normalize keeps finite numeric values and drops everything else.
// Numeric strings and decimals are accepted.
func Normalize(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, raw := range values {
		v, ok := ToFloat(raw)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ToFloat converts a loosely typed value into a finite float64.
func ToFloat(raw any) (float64, bool) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	case decimal.Decimal:
		v = x.InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return 0, false
		}
		v = x.InexactFloat64()
	case *float64:
		if x == nil {
			return 0, false
		}
		v = *x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FiniteOnly drops NaN and infinite values.
func FiniteOnly(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortedCopy(samples []float64) []float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted
}
