// Package annindex implements an approximate nearest-neighbor index with
// HNSW (hierarchical navigable small world) semantics, partitioned by
// user so a search never crosses user boundaries.
package annindex

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// Config tunes the graph construction and search fan-out.
type Config struct {
	M              int // max connections per node per layer
	EfConstruction int // candidate list size while inserting
	EfSearch       int // candidate list size while searching
}

func (c *Config) applyDefaults() {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch == 0 {
		c.EfSearch = 100
	}
}

// Candidate is one search result: a memory id and its cosine similarity
// to the query vector, in [0, 1] for normalized inputs (unnormalized
// inputs may yield similarities outside that range per the cosine
// definition, but embeddings in this engine are always fixed-length
// 768-dim vectors from the same model, so this is not observed in
// practice).
type Candidate struct {
	MemoryID string
	Score    float64
}

type node struct {
	id        string
	vector    []float32
	norm      float64
	level     int
	neighbors []map[string]struct{} // per-layer neighbor id sets
}

// Index is a single user's HNSW graph. Search holds the read lock for the
// whole graph walk and Insert/Delete hold the write lock, so concurrent
// searches proceed together while a write waits for them (and they for it).
type Index struct {
	cfg Config

	mu        sync.RWMutex
	nodes     map[string]*node
	entryID   string
	topLevel  int
	rng       *rand.Rand
}

// New builds an empty index for one user.
func New(cfg Config) *Index {
	cfg.applyDefaults()
	return &Index{
		cfg:      cfg,
		nodes:    make(map[string]*node),
		topLevel: -1,
		rng:      rand.New(rand.NewSource(1)),
	}
}

func (idx *Index) randomLevel() int {
	level := 0
	// Standard HNSW level assignment: geometric distribution with
	// parameter ml = 1/ln(M).
	ml := 1.0 / math.Log(float64(idx.cfg.M))
	for idx.rng.Float64() < math.Exp(-1/ml) && level < 32 {
		level++
	}
	return level
}

// Insert adds or replaces vector under memoryID. Idempotent: re-inserting
// an existing id first removes its old edges.
func (idx *Index) Insert(ctx context.Context, memoryID string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[memoryID]; exists {
		idx.removeLocked(memoryID)
	}

	level := idx.randomLevel()
	n := &node{
		id:        memoryID,
		vector:    vector,
		norm:      vecmath.Norm(vector),
		level:     level,
		neighbors: make([]map[string]struct{}, level+1),
	}
	for i := range n.neighbors {
		n.neighbors[i] = make(map[string]struct{})
	}
	idx.nodes[memoryID] = n

	if idx.entryID == "" {
		idx.entryID = memoryID
		idx.topLevel = level
		return
	}

	entry := idx.entryID
	for l := idx.topLevel; l > level; l-- {
		entry = idx.greedyClosestLocked(entry, n, l)
	}

	for l := min(level, idx.topLevel); l >= 0; l-- {
		candidates := idx.searchLayerLocked(n, entry, idx.cfg.EfConstruction, l)
		neighbors := selectNeighbors(candidates, idx.cfg.M)
		for _, c := range neighbors {
			n.neighbors[l][c.MemoryID] = struct{}{}
			other := idx.nodes[c.MemoryID]
			if other != nil && l < len(other.neighbors) {
				other.neighbors[l][memoryID] = struct{}{}
				idx.pruneLocked(other, l)
			}
		}
		if len(candidates) > 0 {
			entry = candidates[0].MemoryID
		}
	}

	if level > idx.topLevel {
		idx.topLevel = level
		idx.entryID = memoryID
	}
}

func (idx *Index) pruneLocked(n *node, layer int) {
	if len(n.neighbors[layer]) <= idx.cfg.M {
		return
	}
	ids := make([]string, 0, len(n.neighbors[layer]))
	for id := range n.neighbors[layer] {
		ids = append(ids, id)
	}
	cands := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		other := idx.nodes[id]
		if other == nil {
			continue
		}
		cands = append(cands, Candidate{MemoryID: id, Score: vecmath.CosineSimilarityWithNorms(n.vector, other.vector, n.norm, other.norm)})
	}
	kept := selectNeighbors(cands, idx.cfg.M)
	n.neighbors[layer] = make(map[string]struct{}, len(kept))
	for _, c := range kept {
		n.neighbors[layer][c.MemoryID] = struct{}{}
	}
}

// Delete removes memoryID and its edges from every layer.
func (idx *Index) Delete(ctx context.Context, memoryID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(memoryID)
}

func (idx *Index) removeLocked(memoryID string) {
	n, ok := idx.nodes[memoryID]
	if !ok {
		return
	}
	for l, neighbors := range n.neighbors {
		for id := range neighbors {
			if other := idx.nodes[id]; other != nil && l < len(other.neighbors) {
				delete(other.neighbors[l], memoryID)
			}
		}
	}
	delete(idx.nodes, memoryID)

	if idx.entryID == memoryID {
		idx.entryID = ""
		idx.topLevel = -1
		for id, other := range idx.nodes {
			if idx.entryID == "" || other.level > idx.topLevel {
				idx.entryID = id
				idx.topLevel = other.level
			}
		}
	}
}

// Search returns at most k candidates ranked by cosine similarity to
// query, restricted to this index (i.e. this user).
func (idx *Index) Search(ctx context.Context, query []float32, k int) []Candidate {
	idx.mu.RLock()
	if idx.entryID == "" {
		idx.mu.RUnlock()
		return nil
	}
	entry := idx.entryID
	top := idx.topLevel
	queryNode := &node{vector: query, norm: vecmath.Norm(query)}

	for l := top; l > 0; l-- {
		entry = idx.greedyClosestLocked(entry, queryNode, l)
	}
	candidates := idx.searchLayerLocked(queryNode, entry, max(idx.cfg.EfSearch, k), 0)
	idx.mu.RUnlock()

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// greedyClosestLocked descends from entry toward queryNode within a
// single layer, returning the closest node found. Caller holds idx.mu.
func (idx *Index) greedyClosestLocked(entry string, queryNode *node, layer int) string {
	current := entry
	currentNode := idx.nodes[current]
	if currentNode == nil {
		return entry
	}
	bestSim := vecmath.CosineSimilarityWithNorms(queryNode.vector, currentNode.vector, queryNode.norm, currentNode.norm)

	improved := true
	for improved {
		improved = false
		if layer >= len(currentNode.neighbors) {
			break
		}
		for id := range currentNode.neighbors[layer] {
			cand := idx.nodes[id]
			if cand == nil {
				continue
			}
			sim := vecmath.CosineSimilarityWithNorms(queryNode.vector, cand.vector, queryNode.norm, cand.norm)
			if sim > bestSim {
				bestSim = sim
				current = id
				currentNode = cand
				improved = true
			}
		}
	}
	return current
}

// searchLayerLocked performs a best-first search within layer, returning
// up to ef candidates sorted by descending similarity. Caller holds idx.mu.
func (idx *Index) searchLayerLocked(queryNode *node, entry string, ef, layer int) []Candidate {
	visited := map[string]struct{}{entry: {}}
	entryNode := idx.nodes[entry]
	if entryNode == nil {
		return nil
	}
	results := []Candidate{{MemoryID: entry, Score: vecmath.CosineSimilarityWithNorms(queryNode.vector, entryNode.vector, queryNode.norm, entryNode.norm)}}
	frontier := []string{entry}

	for len(frontier) > 0 {
		curID := frontier[0]
		frontier = frontier[1:]
		curNode := idx.nodes[curID]
		if curNode == nil || layer >= len(curNode.neighbors) {
			continue
		}
		for id := range curNode.neighbors[layer] {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			cand := idx.nodes[id]
			if cand == nil {
				continue
			}
			sim := vecmath.CosineSimilarityWithNorms(queryNode.vector, cand.vector, queryNode.norm, cand.norm)
			results = append(results, Candidate{MemoryID: id, Score: sim})
			frontier = append(frontier, id)
		}
	}

	sortByScoreDesc(results)
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func selectNeighbors(candidates []Candidate, m int) []Candidate {
	sortByScoreDesc(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return candidates
}

func sortByScoreDesc(c []Candidate) {
	// Simple insertion sort: candidate lists are bounded by ef/M, so this
	// stays cheap and avoids importing sort for a handful of elements.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score > c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Len reports the number of vectors held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}
