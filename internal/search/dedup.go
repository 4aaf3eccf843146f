package search

// dedup suppresses near-duplicates from an already-ranked list: a
// candidate is dropped if its dense vector is within threshold cosine
// similarity of any higher-ranked candidate already kept (spec §4.11
// stage 9). Candidates without a dense vector (sparse-only hits) are
// always kept, since there is nothing to compare.
func dedup(candidates []rankedCandidate, threshold float64) []rankedCandidate {
	if threshold <= 0 {
		threshold = 0.97
	}
	kept := make([]rankedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if len(cand.dense) == 0 {
			kept = append(kept, cand)
			continue
		}
		isDup := false
		for _, k := range kept {
			if len(k.dense) == 0 {
				continue
			}
			if cosineSim(cand.dense, k.dense) >= threshold {
				isDup = true
				break
			}
		}
		if !isDup {
			kept = append(kept, cand)
		}
	}
	return kept
}
