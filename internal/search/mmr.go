package search

import "math"

// mmrSelect greedily selects up to k candidates maximizing
// lambda*relevance - (1-lambda)*max_sim_to_selected (spec §4.11 stage
// 8). candidates must already be sorted by relevance (ties go to the
// earlier candidate); relevance is each candidate's relevance field as
// set by rerank, not recomputed.
func mmrSelect(candidates []rankedCandidate, k int, lambda float64) []rankedCandidate {
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	if len(candidates) == 0 {
		return nil
	}

	remaining := make([]rankedCandidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]rankedCandidate, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				sim := cosineSim(cand.dense, s.dense)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*cand.relevance - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankedCandidate is the minimal shape MMR and dedup operate on,
// decoupled from Candidate so both stages can run after rerank has
// replaced the score.
type rankedCandidate struct {
	id         string
	collection string
	relevance  float64
	dense      []float32
	payload    map[string]any
	sparseRank int
	denseRank  int
	inBoth     bool
}
