package trace

import (
	"math"
	"sort"
)

type intOrFloat64 interface {
	int | int64 | float64
}

// Percentile returns the p-th percentile of data by linear interpolation
// between closest ranks. data is sorted in place; empty data yields 0.
func Percentile[T intOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	sort.Slice(data, func(i, j int) bool { return data[i] < data[j] })

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return float64(data[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(data[lowerIdx])
	}
	lower, upper := float64(data[lowerIdx]), float64(data[upperIdx])
	return lower + (upper-lower)*(rank-float64(lowerIdx))
}
