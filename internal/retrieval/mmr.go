package retrieval

// DiversifyMMR re-ranks candidates by Maximal Marginal Relevance: given
// query embedding q and already-selected set S, iteratively pick
// argmax_{d in C\S} (λ·sim(q,d) − (1−λ)·max_{s in S} sim(d,s)) until
// |S| = topK or candidates are exhausted. Candidates without an embedding
// (embeddings[id] absent) keep their fused score and skip the penalty term.
func DiversifyMMR(queryVector []float32, candidates []RankedResult, topK int, lambda float64) []RankedResult {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if lambda <= 0 {
		lambda = 0.7
	}

	remaining := append([]RankedResult{}, candidates...)
	var selected []RankedResult

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -2.0

		for i, cand := range remaining {
			relevance := cand.Score
			redundancy := 0.0
			candVec := embeddingFromMetadata(cand)
			if candVec != nil && len(selected) > 0 {
				for _, s := range selected {
					sVec := embeddingFromMetadata(s)
					if sVec == nil {
						continue
					}
					if sim := cosineSimilarity(candVec, sVec); sim > redundancy {
						redundancy = sim
					}
				}
			}
			mmrScore := lambda*relevance - (1-lambda)*redundancy
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func embeddingFromMetadata(r RankedResult) []float32 {
	if r.Metadata == nil {
		return nil
	}
	v, ok := r.Metadata["_embedding"].([]float32)
	if !ok {
		return nil
	}
	return v
}
