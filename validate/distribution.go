package validate

import (
	"math"
	"slices"
)

// Distribution describes a set of chunk token counts.
type Distribution struct {
	Count  int     `json:"count"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    int     `json:"p50"`
	P90    int     `json:"p90"`
	P99    int     `json:"p99"`
	// Outliers counts values more than three standard deviations from the mean.
	Outliers int `json:"outliers"`
}

// Describe computes the distribution of values.
// An empty input yields the zero Distribution.
func Describe(values []int) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(len(sorted))
	var squares float64
	for _, v := range sorted {
		d := float64(v) - mean
		squares += d * d
	}
	stdDev := math.Sqrt(squares / float64(len(sorted)))

	d := Distribution{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		StdDev: stdDev,
		P50:    percentile(sorted, 50),
		P90:    percentile(sorted, 90),
		P99:    percentile(sorted, 99),
	}
	for _, v := range sorted {
		if math.Abs(float64(v)-mean) > 3*stdDev {
			d.Outliers++
		}
	}
	return d
}

// percentile returns the nearest-rank p-th percentile of sorted.
func percentile(sorted []int, p int) int {
	rank := (p*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}
