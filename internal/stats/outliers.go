package stats

import "strings"

type Strategy string

const (
	StrategyAdjust  Strategy = "adjust"
	StrategyExclude Strategy = "exclude"
)

// ParseStrategy falls back to adjust for unknown values.
func ParseStrategy(raw string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyExclude:
		return StrategyExclude
	default:
		return StrategyAdjust
	}
}

type Method string

const (
	MethodNone  Method = "none"
	MethodRatio Method = "ratio"
	MethodIQR   Method = "iqr"
)

const (
	// Samples below this count use the ratio-to-median test instead of IQR.
	minIQRSamples = 4
	ratioLimit    = 10.0
	iqrFactor     = 1.5
)

// OutlierResult describes the processed samples and the bounds used to get there.
type OutlierResult struct {
	Processed []float64 `json:"-"`
	Outliers  int       `json:"outliers"`
	Method    Method    `json:"method"`
	Strategy  Strategy  `json:"strategy"`
	K         float64   `json:"k"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	Median    float64   `json:"median"`
	Q1        float64   `json:"q1"`
	Q3        float64   `json:"q3"`
	IQR       float64   `json:"iqr"`
	Raw       int       `json:"raw_count"`
	Kept      int       `json:"processed_count"`
}

// DetectAndAdjustOutliers flags samples outside robust bounds and either clamps
// (adjust) or drops (exclude) them. Non-finite samples are discarded first.
// The order of the surviving samples is preserved.
func DetectAndAdjustOutliers(samples []float64, k float64, strategy Strategy) OutlierResult {
	if k <= 0 {
		k = 1
	}
	if strategy != StrategyExclude {
		strategy = StrategyAdjust
	}

	clean := FiniteOnly(samples)
	res := OutlierResult{
		Method:   MethodNone,
		Strategy: strategy,
		K:        k,
		Raw:      len(clean),
	}
	if len(clean) == 0 {
		res.Processed = []float64{}
		return res
	}

	sorted := sortedCopy(clean)
	res.Median = quantileSorted(sorted, 0.5)

	if len(clean) < minIQRSamples {
		return ratioFallback(clean, res)
	}

	res.Method = MethodIQR
	res.Q1 = quantileSorted(sorted, 0.25)
	res.Q3 = quantileSorted(sorted, 0.75)
	res.IQR = res.Q3 - res.Q1
	res.Lower = res.Q1 - iqrFactor*k*res.IQR
	res.Upper = res.Q3 + iqrFactor*k*res.IQR

	processed := make([]float64, 0, len(clean))
	for _, v := range clean {
		switch {
		case v < res.Lower:
			res.Outliers++
			if strategy == StrategyAdjust {
				processed = append(processed, res.Lower)
			}
		case v > res.Upper:
			res.Outliers++
			if strategy == StrategyAdjust {
				processed = append(processed, res.Upper)
			}
		default:
			processed = append(processed, v)
		}
	}
	res.Processed = processed
	res.Kept = len(processed)
	return res
}

// ratioFallback flags values at least ratioLimit times larger or smaller than
// the median. A non-positive median disables the test.
func ratioFallback(clean []float64, res OutlierResult) OutlierResult {
	processed := make([]float64, len(clean))
	copy(processed, clean)
	res.Processed = processed
	res.Kept = len(processed)

	median := res.Median
	if median <= 0 {
		return res
	}

	res.Method = MethodRatio
	res.Lower = median / ratioLimit
	res.Upper = median * ratioLimit

	kept := processed[:0]
	for _, v := range clean {
		switch {
		case v >= res.Upper:
			res.Outliers++
			if res.Strategy == StrategyAdjust {
				kept = append(kept, res.Upper)
			}
		case v <= res.Lower:
			res.Outliers++
			if res.Strategy == StrategyAdjust {
				kept = append(kept, res.Lower)
			}
		default:
			kept = append(kept, v)
		}
	}
	res.Processed = kept
	res.Kept = len(kept)
	return res
}
