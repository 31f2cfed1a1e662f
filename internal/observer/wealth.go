package observer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// wealthStats holds the distribution statistics for one currency's balances.
type wealthStats struct {
	gini       float64
	mean       float64
	median     float64
	top10Share float64
	divergence float64
}

// computeWealth derives distribution stats from the balances of every agent
// in one currency. The slice is sorted in place.
func computeWealth(balances []float64) wealthStats {
	n := len(balances)
	if n == 0 {
		return wealthStats{}
	}
	sort.Float64s(balances)

	total := 0.0
	for _, b := range balances {
		total += b
	}
	mean := total / float64(n)

	var median float64
	if n%2 == 1 {
		median = balances[n/2]
	} else {
		median = (balances[n/2-1] + balances[n/2]) / 2
	}

	// Standard Gini over the sorted slice; absolute value clamped to [0,1]
	// so degenerate inputs (all-zero, negative noise) stay in range.
	gini := 0.0
	if total > 0 {
		weighted := 0.0
		for i, b := range balances {
			weighted += float64(i+1) * b
		}
		gini = (2*weighted)/(float64(n)*total) - float64(n+1)/float64(n)
		gini = math.Abs(gini)
		if gini > 1 {
			gini = 1
		}
	}

	top10 := 0.0
	if total > 0 {
		start := int(math.Floor(0.9 * float64(n)))
		for _, b := range balances[start:] {
			top10 += b
		}
		top10 /= total
	}

	divergence := 0.0
	if median > 0 {
		divergence = math.Abs(mean-median) / median
	}

	return wealthStats{
		gini:       gini,
		mean:       mean,
		median:     median,
		top10Share: top10,
		divergence: divergence,
	}
}

// logPriceSpread is the saturated standard deviation of the natural logs of
// the positive prices, clamped to [0,1]. Fewer than two positive prices
// yields 0.
func logPriceSpread(prices []float64) float64 {
	logs := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 {
			logs = append(logs, math.Log(p))
		}
	}
	if len(logs) < 2 {
		return 0
	}
	sd := stat.PopStdDev(logs, nil)
	if math.IsNaN(sd) || sd < 0 {
		return 0
	}
	if sd > 1 {
		return 1
	}
	return sd
}
