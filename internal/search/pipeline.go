package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vectorizer-project/vectorizer/internal/collection"
	"github.com/vectorizer-project/vectorizer/internal/embedprovider"
)

// CollectionResolver looks up a named collection, the same shape
// store.Store.Get already exposes, kept as a local interface so this
// package never imports internal/store.
type CollectionResolver interface {
	Get(name string) (*collection.Collection, error)
}

// Pipeline runs the ten-stage query pipeline of spec §4.11 across one
// or more collections.
type Pipeline struct {
	resolver CollectionResolver
	embedder embedprovider.Embedder
	expander *Expander
	now      func() time.Time
}

// New builds a Pipeline. embedder may be nil, in which case dense
// retrieval is skipped for every query regardless of DisableDense.
func New(resolver CollectionResolver, embedder embedprovider.Embedder) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		embedder: embedder,
		expander: NewExpander(3),
		now:      time.Now,
	}
}

// Search executes the full pipeline for q.
func (p *Pipeline) Search(ctx context.Context, q Query) (*Result, error) {
	if len(q.Collections) == 0 {
		return nil, fmt.Errorf("search: query has no target collections")
	}
	if q.K <= 0 {
		q.K = 10
	}
	if q.RRFConstant <= 0 {
		q.RRFConstant = DefaultRRFConstant
	}
	if q.Weights == (Weights{}) {
		q.Weights = DefaultWeights()
	}
	if q.Fusion == "" {
		q.Fusion = FusionRRF
	}
	if q.MMRLambda == 0 {
		q.MMRLambda = 0.5
	}
	if q.Rerank == (RerankWeights{}) {
		q.Rerank = DefaultRerankWeights()
	}

	var stats Stats

	// Stage 1: query normalization.
	normalized := q.Text
	if !q.DisableNormalization {
		normalized = normalizeQuery(q.Text, q.Lowercase)
	}

	// Stage 2: query expansion (dense-only).
	variants := []string{normalized}
	if !q.DisableExpansion {
		expander := p.expander
		if q.MaxExpansions > 0 {
			expander = NewExpander(q.MaxExpansions)
		}
		variants = expander.Expand(normalized)
	}
	stats.ExpandedQueries = len(variants)

	// Stages 3-4: per-collection dense and sparse retrieval, fanned out
	// in parallel across collections.
	perCollection := make([][]Candidate, len(q.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range q.Collections {
		i, name := i, name
		g.Go(func() error {
			coll, err := p.resolver.Get(name)
			if err != nil {
				return fmt.Errorf("search: resolve collection %q: %w", name, err)
			}

			dense, err := p.searchDense(gctx, coll, name, variants, q)
			if err != nil {
				return fmt.Errorf("search: dense retrieval on %q: %w", name, err)
			}
			sparse, err := p.searchSparse(gctx, coll, name, normalized, q)
			if err != nil {
				return fmt.Errorf("search: sparse retrieval on %q: %w", name, err)
			}

			// Stage 5 (per collection): fuse dense+sparse.
			var fused []Candidate
			switch q.Fusion {
			case FusionWeightedSum:
				fused = fuseWeightedSum(sparse, dense, q.Weights)
			default:
				fused = fuseRRF(sparse, dense, q.Weights, q.RRFConstant)
			}
			perCollection[i] = fused
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, fused := range perCollection {
		stats.FusedCandidates += len(fused)
	}

	// Stage 5 (cross-collection): each collection's fused list is
	// already scaled into [0,1] (RRF divides by the top score; weighted
	// sum combines min-max-normalized inputs), so merging is a
	// plain concatenation followed by a single re-sort — the
	// "cross-collection normalization" spec §4.11 calls for.
	all := make([]Candidate, 0, stats.FusedCandidates)
	for _, fused := range perCollection {
		all = append(all, fused...)
	}
	sortCandidates(all)

	// Stage 6: payload filter (idempotent safety net; SearchDense and
	// SearchSparse already pushed the filter into/near the index).
	if q.Filter != nil {
		filtered := all[:0:0]
		for _, c := range all {
			if q.Filter.Matches(c.Payload) {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}
	stats.AfterFilter = len(all)

	// Stage 7: rerank.
	queryTerms := tokenizeQuery(normalized)
	rerankWeights := q.Rerank
	if q.DisableRerank {
		// Relevance is the fused score alone.
		rerankWeights = RerankWeights{Similarity: 1}
	}
	ranked := rerank(all, queryTerms, q.CollectionPriority, rerankWeights, p.now())
	sortRanked(ranked)
	stats.AfterRerank = len(ranked)

	// Stage 8: MMR diversification.
	if !q.DisableMMR {
		mmrK := len(ranked)
		if mmrK > q.K*4 {
			mmrK = q.K * 4
		}
		ranked = mmrSelect(ranked, mmrK, q.MMRLambda)
	}
	stats.AfterMMR = len(ranked)

	// Stage 9: near-duplicate suppression.
	if !q.DisableDedup {
		ranked = dedup(ranked, q.DedupThreshold)
	}
	stats.AfterDedup = len(ranked)

	// Stage 10: truncation.
	if len(ranked) > q.K {
		ranked = ranked[:q.K]
	}

	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = Hit{
			ID:          r.id,
			Collection:  r.collection,
			Score:       r.relevance,
			Payload:     r.payload,
			Dense:       r.dense,
			SparseRank:  r.sparseRank,
			DenseRank:   r.denseRank,
			InBothLists: r.inBoth,
		}
	}
	return &Result{Hits: hits, Stats: stats}, nil
}

func (p *Pipeline) searchDense(ctx context.Context, coll *collection.Collection, name string, variants []string, q Query) ([]ScoredCandidate, error) {
	if q.DisableDense || p.embedder == nil {
		return nil, nil
	}

	byID := make(map[string]ScoredCandidate)
	order := make([]string, 0)
	for _, variant := range variants {
		vec, err := p.embedder.Embed(ctx, variant)
		if err != nil {
			return nil, err
		}
		results, err := coll.SearchDense(ctx, vec, q.K*4, q.EfSearch, q.Filter)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			existing, ok := byID[r.ID]
			if !ok || float64(r.Score) > existing.Score {
				byID[r.ID] = ScoredCandidate{ID: r.ID, Collection: name, Score: float64(r.Score)}
				if !ok {
					order = append(order, r.ID)
				}
			}
		}
	}

	out := make([]ScoredCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	p.hydrate(ctx, coll, out)
	return out, nil
}

func (p *Pipeline) searchSparse(ctx context.Context, coll *collection.Collection, name string, query string, q Query) ([]ScoredCandidate, error) {
	if q.DisableSparse {
		return nil, nil
	}
	results, err := coll.SearchSparse(ctx, query, q.K*4, q.Filter)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredCandidate, len(results))
	for i, r := range results {
		out[i] = ScoredCandidate{ID: r.ID, Collection: name, Score: float64(r.Score)}
	}
	p.hydrate(ctx, coll, out)
	return out, nil
}

// hydrate fills in payload/dense for each candidate by fetching the
// full record, since ScoredResult only carries ID and score.
func (p *Pipeline) hydrate(ctx context.Context, coll *collection.Collection, cands []ScoredCandidate) {
	for i := range cands {
		v, err := coll.Get(ctx, cands[i].ID, true, true)
		if err != nil || v == nil {
			continue
		}
		cands[i].Payload = v.Payload
		cands[i].Dense = v.Dense
	}
}

func sortRanked(r []rankedCandidate) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].relevance != r[j].relevance {
			return r[i].relevance > r[j].relevance
		}
		return r[i].id < r[j].id
	})
}

func tokenizeQuery(q string) []string {
	var terms []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			terms = append(terms, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range q {
		if r == ' ' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return terms
}
