package analysis

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Segment names, lowest monetary quartile first
const (
	SegmentBronze   = "Bronze"
	SegmentSilver   = "Silver"
	SegmentGold     = "Gold"
	SegmentPlatinum = "Platinum"
)

var segmentNames = []string{SegmentBronze, SegmentSilver, SegmentGold, SegmentPlatinum}

// SegmentSummary describes one monetary quartile
type SegmentSummary struct {
	Segment      string  `json:"segment"`
	Customers    int     `json:"customers"`
	MeanMonetary float64 `json:"mean_monetary"`
}

// Segment buckets customers into monetary-value quartiles. Bins are
// right-inclusive on linearly interpolated quantiles, so equal values always
// share a segment. Segments with no customers are omitted.
func Segment(monetary []decimal.Decimal) []SegmentSummary {
	if len(monetary) == 0 {
		return []SegmentSummary{}
	}

	values := make([]float64, len(monetary))
	for i, m := range monetary {
		values[i] = m.InexactFloat64()
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	edges := []float64{quantile(sorted, 0.25), quantile(sorted, 0.5), quantile(sorted, 0.75)}

	counts := make([]int, len(segmentNames))
	sums := make([]float64, len(segmentNames))
	for _, v := range values {
		b := bucket(v, edges)
		counts[b]++
		sums[b] += v
	}

	out := make([]SegmentSummary, 0, len(segmentNames))
	for i, name := range segmentNames {
		if counts[i] == 0 {
			continue
		}
		out = append(out, SegmentSummary{
			Segment:      name,
			Customers:    counts[i],
			MeanMonetary: sums[i] / float64(counts[i]),
		})
	}
	return out
}

func bucket(v float64, edges []float64) int {
	for i, e := range edges {
		if v <= e {
			return i
		}
	}
	return len(edges)
}

// quantile interpolates linearly between the closest ranks of sorted
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
