package search

import (
	"strings"
	"time"
)

// rerank recomputes each candidate's score as a weighted blend of the
// fused score, query-term overlap (the fraction of query terms found in
// the content), rank position, collection
// priority, content length, and freshness (spec §4.11 stage 7's
// "weighted re-scoring using multiple factors"). queryTerms is the
// tokenized, normalized query used for the term-overlap factor.
func rerank(candidates []Candidate, queryTerms []string, priority map[string]float64, w RerankWeights, now time.Time) []rankedCandidate {
	out := make([]rankedCandidate, len(candidates))
	n := len(candidates)

	for i, cand := range candidates {
		positionScore := 1.0
		if n > 1 {
			positionScore = 1 - float64(i)/float64(n-1)
		}

		overlap := termOverlap(queryTerms, cand.Payload)
		prio := priority[cand.Collection]
		if prio == 0 {
			prio = 1.0
		}
		length := contentLengthScore(cand.Payload)
		fresh := freshnessScore(modifiedAt(cand.Payload), now)

		score := w.Similarity*cand.fusedScore +
			w.TermOverlap*overlap +
			w.RankPosition*positionScore +
			w.CollectionPrio*normalizePriority(prio) +
			w.ContentLength*length +
			w.Freshness*fresh

		out[i] = rankedCandidate{
			id:         cand.ID,
			collection: cand.Collection,
			relevance:  score,
			dense:      cand.Dense,
			payload:    cand.Payload,
			sparseRank: cand.SparseRank,
			denseRank:  cand.DenseRank,
			inBoth:     cand.inBothLists(),
		}
	}
	return out
}

func normalizePriority(p float64) float64 {
	// priorities are typically in [0, ~2]; clamp into [0,1] so the
	// weighted sum stays comparable to the other normalized factors.
	if p < 0 {
		return 0
	}
	if p > 2 {
		return 1
	}
	return p / 2
}

func termOverlap(queryTerms []string, payload map[string]any) float64 {
	if len(queryTerms) == 0 || payload == nil {
		return 0
	}
	content, ok := payload["content"].(string)
	if !ok || content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range queryTerms {
		if strings.Contains(lower, strings.ToLower(t)) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

func contentLengthScore(payload map[string]any) float64 {
	if payload == nil {
		return 0
	}
	content, ok := payload["content"].(string)
	if !ok {
		return 0
	}
	const target = 2000.0 // characters; longer/shorter content scores lower
	length := float64(len(content))
	if length == 0 {
		return 0
	}
	ratio := length / target
	if ratio > 1 {
		ratio = 1 / ratio
	}
	return ratio
}

func modifiedAt(payload map[string]any) time.Time {
	if payload == nil {
		return time.Time{}
	}
	switch v := payload["modified_at"].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
