package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search,
// OpenSearch, etc.).
const DefaultRRFConstant = 60

// Candidate is one retrieval-stage hit, carried through fusion before
// it becomes a Hit.
type Candidate struct {
	ID          string
	Collection  string
	SparseScore float64
	SparseRank  int // 1-indexed, 0 if absent
	DenseScore  float64
	DenseRank   int // 1-indexed, 0 if absent
	Payload     map[string]any
	Dense       []float32
	fusedScore  float64
}

// FusedScore returns the stage-5 fusion score.
func (c Candidate) FusedScore() float64 { return c.fusedScore }

func (c *Candidate) inBothLists() bool {
	return c.SparseRank > 0 && c.DenseRank > 0
}

// fuseRRF combines sparse and dense ranked lists with Reciprocal Rank
// Fusion: score(d) = Σ weight_i / (k + rank_i). Documents missing from
// one list are assigned that list's missing_rank = max(len)+1 so they
// still receive a (small) contribution from it.
func fuseRRF(sparse, dense []ScoredCandidate, w Weights, k int) []Candidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(sparse) == 0 && len(dense) == 0 {
		return nil
	}

	byID := make(map[string]*Candidate, len(sparse)+len(dense))
	order := make([]string, 0, len(sparse)+len(dense))
	get := func(c ScoredCandidate) *Candidate {
		if cand, ok := byID[c.ID]; ok {
			return cand
		}
		cand := &Candidate{ID: c.ID, Collection: c.Collection, Payload: c.Payload, Dense: c.Dense}
		byID[c.ID] = cand
		order = append(order, c.ID)
		return cand
	}

	for rank, c := range sparse {
		cand := get(c)
		cand.SparseScore = c.Score
		cand.SparseRank = rank + 1
	}
	for rank, c := range dense {
		cand := get(c)
		cand.DenseScore = c.Score
		cand.DenseRank = rank + 1
		if cand.Payload == nil {
			cand.Payload = c.Payload
		}
		if cand.Dense == nil {
			cand.Dense = c.Dense
		}
	}

	missingRank := len(sparse)
	if len(dense) > missingRank {
		missingRank = len(dense)
	}
	missingRank++

	results := make([]Candidate, 0, len(order))
	for _, id := range order {
		cand := byID[id]
		var rrf float64
		if cand.SparseRank > 0 {
			rrf += w.Sparse / float64(k+cand.SparseRank)
		} else {
			rrf += w.Sparse / float64(k+missingRank)
		}
		if cand.DenseRank > 0 {
			rrf += w.Dense / float64(k+cand.DenseRank)
		} else {
			rrf += w.Dense / float64(k+missingRank)
		}
		cand.fusedScore = rrf
		results = append(results, *cand)
	}

	sortCandidates(results)
	normalizeFused(results)
	return results
}

// fuseWeightedSum combines sparse and dense lists as alpha*dense +
// (1-alpha)*sparse after min-max normalizing each list independently.
func fuseWeightedSum(sparse, dense []ScoredCandidate, w Weights) []Candidate {
	if len(sparse) == 0 && len(dense) == 0 {
		return nil
	}

	sparseNorm := minMaxNormalize(sparse)
	denseNorm := minMaxNormalize(dense)

	byID := make(map[string]*Candidate, len(sparse)+len(dense))
	order := make([]string, 0, len(sparse)+len(dense))
	get := func(id, collection string, payload map[string]any, vec []float32) *Candidate {
		if cand, ok := byID[id]; ok {
			return cand
		}
		cand := &Candidate{ID: id, Collection: collection, Payload: payload, Dense: vec}
		byID[id] = cand
		order = append(order, id)
		return cand
	}

	for rank, c := range sparse {
		cand := get(c.ID, c.Collection, c.Payload, c.Dense)
		cand.SparseScore = sparseNorm[rank]
		cand.SparseRank = rank + 1
	}
	for rank, c := range dense {
		cand := get(c.ID, c.Collection, c.Payload, c.Dense)
		cand.DenseScore = denseNorm[rank]
		cand.DenseRank = rank + 1
		if cand.Payload == nil {
			cand.Payload = c.Payload
		}
		if cand.Dense == nil {
			cand.Dense = c.Dense
		}
	}

	results := make([]Candidate, 0, len(order))
	for _, id := range order {
		cand := byID[id]
		cand.fusedScore = w.Dense*cand.DenseScore + w.Sparse*cand.SparseScore
		results = append(results, *cand)
	}

	sortCandidates(results)
	return results
}

func minMaxNormalize(cands []ScoredCandidate) []float64 {
	out := make([]float64, len(cands))
	if len(cands) == 0 {
		return out
	}
	min, max := cands[0].Score, cands[0].Score
	for _, c := range cands {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	span := max - min
	for i, c := range cands {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (c.Score - min) / span
	}
	return out
}

// sortCandidates orders by fused score (desc) → in both lists → sparse
// score (desc) → ID (asc), mirroring the fusion tie-break used
// throughout this package.
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.fusedScore != b.fusedScore {
			return a.fusedScore > b.fusedScore
		}
		if a.inBothLists() != b.inBothLists() {
			return a.inBothLists()
		}
		if a.SparseScore != b.SparseScore {
			return a.SparseScore > b.SparseScore
		}
		return a.ID < b.ID
	})
}

func normalizeFused(cands []Candidate) {
	if len(cands) == 0 {
		return
	}
	max := cands[0].fusedScore
	if max == 0 {
		return
	}
	for i := range cands {
		cands[i].fusedScore /= max
	}
}

// ScoredCandidate is a single ranked retrieval hit as produced by the
// dense or sparse retrieval stage, before fusion.
type ScoredCandidate struct {
	ID         string
	Collection string
	Score      float64
	Payload    map[string]any
	Dense      []float32
}
