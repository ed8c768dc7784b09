// Package stats maintains streaming travel-time statistics.
//
// Each statistic is an exponential moving average of the first and second
// moments of observed durations. No raw samples are kept: the estimator
// follows drift but cannot reconstruct a historical distribution.
package stats

import (
	"math"

	"github.com/me/ringflow/pkg/model"
)

// Update folds one sample (milliseconds) into prev with smoothing factor
// alpha and returns the new statistic. A nil or empty prev is seeded with
// the sample itself, so the first update yields mean = sample and std = 0.
func Update(prev *model.Stat, sampleMs, alpha float64) model.Stat {
	ema1, ema2 := sampleMs, sampleMs*sampleMs
	var count int64
	if prev != nil && prev.Count > 0 {
		ema1, ema2, count = prev.EMA1, prev.EMA2, prev.Count
	}

	ema1 = (1-alpha)*ema1 + alpha*sampleMs
	ema2 = (1-alpha)*ema2 + alpha*sampleMs*sampleMs

	variance := ema2 - ema1*ema1
	if variance < 0 {
		variance = 0
	}
	return model.Stat{
		EMA1:  ema1,
		EMA2:  ema2,
		Mean:  ema1,
		Std:   math.Sqrt(variance),
		Count: count + 1,
	}
}
