package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// node is one arena slot. Neighbors are internal_index values, never
// pointers, so the arena can be grown, compacted, or persisted as a
// plain slice.
type node struct {
	Vector    []float32
	Neighbors [][]uint32 // Neighbors[layer] = neighbor indices at that layer
	Level     int
	Tombstone bool
	Present   bool // false for indices never inserted (e.g. gaps)
}

// Graph is an arena-indexed, multi-layer HNSW index. Nodes are addressed
// by the same internal_index the vector store assigns; the graph keeps
// its own copy of each vector so traversal never has to cross back into
// the vector store on the hot path.
type Graph struct {
	mu sync.RWMutex

	cfg   Config
	nodes []node // arena, indexed by internal_index

	entryPoint int64 // -1 when empty
	maxLevel   int
	levelMult  float64
	rng        *rand.Rand

	validCount int
}

// New creates an empty graph with the given configuration.
func New(cfg Config) *Graph {
	if cfg.M < 1 {
		cfg.M = DefaultConfig().M
	}
	if cfg.EfConstruction < 1 {
		cfg.EfConstruction = DefaultConfig().EfConstruction
	}
	if cfg.EfSearch < 1 {
		cfg.EfSearch = DefaultConfig().EfSearch
	}
	return &Graph{
		cfg:        cfg,
		entryPoint: -1,
		levelMult:  1.0 / math.Log(float64(cfg.M)),
		rng:        rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

func (g *Graph) mMax(layer int) int {
	if layer == 0 {
		return g.cfg.M * 2
	}
	return g.cfg.M
}

func (g *Graph) randomLevel() int {
	r := g.rng.Float64()
	if r <= 0 {
		r = 1e-12
	}
	return int(math.Floor(-math.Log(r) * g.levelMult))
}

func (g *Graph) ensureArena(idx uint32) {
	if int(idx) < len(g.nodes) {
		return
	}
	grown := make([]node, idx+1)
	copy(grown, g.nodes)
	g.nodes = grown
}

// Insert adds a vector at internal_index idx, picking its level
// geometrically (base 1/ln(m), seeded by cfg.Seed for reproducibility)
// and linking to the m nearest neighbors on each layer it participates
// in.
func (g *Graph) Insert(idx uint32, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("hnsw: empty vector for index %d", idx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	v := prepareForIndex(g.cfg.Metric, vector)
	level := g.randomLevel()

	g.ensureArena(idx)
	g.nodes[idx] = node{
		Vector:    v,
		Neighbors: make([][]uint32, level+1),
		Level:     level,
		Present:   true,
	}
	g.validCount++

	if g.entryPoint < 0 {
		g.entryPoint = int64(idx)
		g.maxLevel = level
		return nil
	}

	ep := uint32(g.entryPoint)
	for layer := g.maxLevel; layer > level; layer-- {
		ep = g.greedyClosest(v, ep, layer)
	}

	for layer := minInt(g.maxLevel, level); layer >= 0; layer-- {
		candidates := g.searchLayer(v, []uint32{ep}, g.cfg.EfConstruction, layer, nil)
		neighbors := g.selectNeighbors(candidates, g.cfg.M)

		g.nodes[idx].Neighbors[layer] = neighbors
		for _, n := range neighbors {
			g.addLink(n, idx, layer)
		}
		if len(candidates) > 0 {
			ep = candidates[0].idx
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = int64(idx)
	}

	return nil
}

// addLink connects neighbor -> idx at layer and prunes neighbor's list
// back down to mMax(layer) if it grew past the cap, keeping the closest.
func (g *Graph) addLink(neighbor, idx uint32, layer int) {
	n := &g.nodes[neighbor]
	if len(n.Neighbors) <= layer {
		grown := make([][]uint32, layer+1)
		copy(grown, n.Neighbors)
		n.Neighbors = grown
	}
	n.Neighbors[layer] = append(n.Neighbors[layer], idx)

	cap := g.mMax(layer)
	if len(n.Neighbors[layer]) <= cap {
		return
	}

	cands := make([]candidate, 0, len(n.Neighbors[layer]))
	for _, other := range n.Neighbors[layer] {
		cands = append(cands, candidate{idx: other, dist: rawDistance(g.cfg.Metric, n.Vector, g.nodes[other].Vector)})
	}
	best := g.selectNeighbors(cands, cap)
	n.Neighbors[layer] = best
}

// greedyClosest walks a single layer from ep toward the nearest node to
// query, used only for the upper-layer descent before the real
// ef-bounded search kicks in at the insertion/search layer.
func (g *Graph) greedyClosest(query []float32, ep uint32, layer int) uint32 {
	current := ep
	currentDist := rawDistance(g.cfg.Metric, query, g.nodes[current].Vector)

	for {
		improved := false
		for _, neigh := range g.neighborsAt(current, layer) {
			if !g.nodes[neigh].Present {
				continue
			}
			d := rawDistance(g.cfg.Metric, query, g.nodes[neigh].Vector)
			if d < currentDist {
				currentDist = d
				current = neigh
				improved = true
			}
		}
		if !improved {
			return current
		}
	}
}

func (g *Graph) neighborsAt(idx uint32, layer int) []uint32 {
	n := &g.nodes[idx]
	if layer >= len(n.Neighbors) {
		return nil
	}
	return n.Neighbors[layer]
}

// selectNeighbors keeps the closest n candidates, deterministically
// breaking ties toward the lower internal_index.
func (g *Graph) selectNeighbors(cands []candidate, n int) []uint32 {
	sorted := append([]candidate(nil), cands...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]uint32, len(sorted))
	for i, c := range sorted {
		out[i] = c.idx
	}
	return out
}

func less(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.idx < b.idx
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
