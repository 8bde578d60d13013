package dataprocessing

import "sort"

// DenseRank ranks values from highest to lowest. Equal values share a rank and
// the next distinct value gets the previous rank plus one, so [100 100 50]
// ranks as [1 1 2].
func DenseRank(values []float64) []int {
	distinct := make([]float64, 0, len(values))
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			distinct = append(distinct, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))

	rankOf := make(map[float64]int, len(distinct))
	for i, v := range distinct {
		rankOf[v] = i + 1
	}

	ranks := make([]int, len(values))
	for i, v := range values {
		ranks[i] = rankOf[v]
	}
	return ranks
}
