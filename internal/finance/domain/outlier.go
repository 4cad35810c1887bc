package finance

import "math"

// DefaultOutlierThreshold is the z-score above which a value is an outlier.
const DefaultOutlierThreshold = 2.5

const minOutlierSamples = 3

// OutlierResult describes a z-score check against history.
type OutlierResult struct {
	IsOutlier   bool    `json:"isOutlier"`
	ZScore      float64 `json:"zScore"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"`
	SampleCount int     `json:"sampleCount"`
}

// DetectOutlier flags value when its z-score against history exceeds threshold.
// Fewer than three finite samples or a flat history never flags.
func DetectOutlier(value float64, history []float64, threshold float64) OutlierResult {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	samples := make([]float64, 0, len(history))
	for _, v := range history {
		if isFinite(v) {
			samples = append(samples, v)
		}
	}
	res := OutlierResult{SampleCount: len(samples)}
	if len(samples) < minOutlierSamples || !isFinite(value) {
		return res
	}

	res.Mean, res.StdDev = meanStd(samples)
	if res.StdDev == 0 {
		return res
	}
	res.ZScore = (value - res.Mean) / res.StdDev
	res.IsOutlier = math.Abs(res.ZScore) > threshold
	return res
}

func meanStd(a []float64) (float64, float64) {
	if len(a) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range a {
		sum += v
	}
	mean := sum / float64(len(a))
	var sq float64
	for _, v := range a {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(a)))
}
