package hnsw

import "container/heap"

// passesFilter excludes tombstoned and absent nodes unconditionally;
// the caller's filter narrows further.
func (g *Graph) passesFilter(idx uint32, filter Filter) bool {
	n := &g.nodes[idx]
	if !n.Present || n.Tombstone {
		return false
	}
	if filter == nil {
		return true
	}
	return filter(idx)
}

// searchLayer runs an ef-bounded beam search at one layer starting from
// entryPoints. The traversal frontier expands through every neighbor
// regardless of filter so a tombstoned or filtered-out node still links
// its neighborhood together; only nodes passing the filter are kept in
// the returned result set. Results are sorted closest-first, deterministic
// ties broken by lower internal_index.
func (g *Graph) searchLayer(query []float32, entryPoints []uint32, ef int, layer int, filter Filter) []candidate {
	visited := make(map[uint32]bool, ef*2)
	candidates := &minHeap{}
	results := &maxHeap{}
	heap.Init(candidates)
	heap.Init(results)

	for _, ep := range entryPoints {
		if !g.nodes[ep].Present || visited[ep] {
			continue
		}
		visited[ep] = true
		d := rawDistance(g.cfg.Metric, query, g.nodes[ep].Vector)
		heap.Push(candidates, candidate{idx: ep, dist: d})
		if g.passesFilter(ep, filter) {
			heap.Push(results, candidate{idx: ep, dist: d})
		}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef {
			worst := (*results)[0]
			if c.dist > worst.dist {
				break
			}
		}

		for _, neigh := range g.neighborsAt(c.idx, layer) {
			if !g.nodes[neigh].Present || visited[neigh] {
				continue
			}
			visited[neigh] = true
			d := rawDistance(g.cfg.Metric, query, g.nodes[neigh].Vector)

			admit := results.Len() < ef
			if !admit && results.Len() > 0 {
				admit = d < (*results)[0].dist
			}
			if !admit {
				continue
			}

			heap.Push(candidates, candidate{idx: neigh, dist: d})
			if g.passesFilter(neigh, filter) {
				heap.Push(results, candidate{idx: neigh, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Search returns up to k nearest neighbors of query, ordered by
// descending score with lower internal_index breaking ties. efSearch
// bounds the candidate list size during the query; a value below k is
// raised to k, and the value is not capped at ef_construction. If fewer
// than k live nodes exist, as many
// as exist are returned. filter may be nil.
func (g *Graph) Search(query []float32, k int, efSearch int, filter Filter) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entryPoint < 0 {
		return nil, ErrIndexNotBuilt
	}
	if efSearch < k {
		efSearch = k
	}
	if efSearch < 1 {
		efSearch = g.cfg.EfSearch
	}

	q := prepareForIndex(g.cfg.Metric, query)

	ep := uint32(g.entryPoint)
	for layer := g.maxLevel; layer > 0; layer-- {
		ep = g.greedyClosest(q, ep, layer)
	}

	cands := g.searchLayer(q, []uint32{ep}, efSearch, 0, filter)
	if len(cands) > k {
		cands = cands[:k]
	}

	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{Index: c.idx, Score: distanceToScore(g.cfg.Metric, c.dist)}
	}
	return out, nil
}

// BatchSearch runs Search independently for each query, parallelizing
// nothing beyond what the caller orchestrates; each query holds only a
// read lock so concurrent callers may call BatchSearch/Search freely.
func (g *Graph) BatchSearch(queries [][]float32, k int, efSearch int, filter Filter) ([][]Result, error) {
	out := make([][]Result, len(queries))
	for i, q := range queries {
		r, err := g.Search(q, k, efSearch, filter)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// MarkDeleted tombstones a node: it stays in the arena and keeps
// serving as a connectivity hop for other nodes' traversals, but Search
// never returns it.
func (g *Graph) MarkDeleted(idx uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if int(idx) >= len(g.nodes) || !g.nodes[idx].Present {
		return ErrNodeNotFound{Index: idx}
	}
	if g.nodes[idx].Tombstone {
		return nil
	}
	g.nodes[idx].Tombstone = true
	g.validCount--
	return nil
}

// Stats reports arena accounting.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	orphans := 0
	for i := range g.nodes {
		if g.nodes[i].Present && !g.nodes[i].Tombstone && len(g.nodes[i].Neighbors) == 0 {
			orphans++
		}
	}
	return Stats{
		ValidNodes: g.validCount,
		TotalNodes: len(g.nodes),
		Orphans:    orphans,
		MaxLevel:   g.maxLevel,
	}
}
