package retrieval

import "sort"

// FuseRRF combines multiple ranked lists with Reciprocal Rank Fusion:
// RRF(d) = Σ_i 1/(k + rank_i(d)), rank_i starting at 1. Candidates present
// in only one list still get a score from that list alone. No cross-list
// score calibration is needed.
func FuseRRF(k int, lists ...[]RankedResult) []RankedResult {
	if k <= 0 {
		k = 60
	}

	type entry struct {
		result RankedResult
		score  float64
	}
	byNode := make(map[string]*entry)
	var order []string

	for _, list := range lists {
		sorted := append([]RankedResult{}, list...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

		for rank, r := range sorted {
			contribution := 1.0 / float64(k+rank+1)
			if e, ok := byNode[r.NodeID]; ok {
				e.score += contribution
				if e.result.Metadata["_embedding"] == nil && r.Metadata["_embedding"] != nil {
					e.result.Metadata["_embedding"] = r.Metadata["_embedding"]
				}
			} else {
				byNode[r.NodeID] = &entry{result: r, score: contribution}
				order = append(order, r.NodeID)
			}
		}
	}

	out := make([]RankedResult, 0, len(order))
	for _, id := range order {
		e := byNode[id]
		e.result.Score = e.score
		out = append(out, e.result)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
