package graph

import (
	"context"
	"fmt"
	"sort"
)

// snapshot is an immutable copy of the persisted graph. All analytics run
// against a snapshot so concurrent mutation cannot corrupt a computation.
type snapshot struct {
	nodes []*nodeRef
	index map[string]int

	// out keeps one entry per outgoing edge (parallel edges included);
	// PageRank flow divides across them.
	out [][]int
	// neighbors is the distinct undirected adjacency per node.
	neighbors []map[int]struct{}
	// weightedAdj is the undirected weighted adjacency, every edge in
	// both directions with parallel edges kept. The community weight
	// threshold is applied during traversal, not here.
	weightedAdj [][]weighted
}

type nodeRef struct {
	ID string
}

type weighted struct {
	target int
	weight float64
}

func (e *Engine) buildSnapshot(ctx context.Context) (*snapshot, error) {
	storedNodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph snapshot: %w", err)
	}
	storedEdges, err := e.store.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph snapshot: %w", err)
	}

	snap := &snapshot{
		nodes:         make([]*nodeRef, 0, len(storedNodes)),
		index:         make(map[string]int, len(storedNodes)),
		out:           make([][]int, len(storedNodes)),
		neighbors:     make([]map[int]struct{}, len(storedNodes)),
		weightedAdj: make([][]weighted, len(storedNodes)),
	}

	sort.Slice(storedNodes, func(i, j int) bool { return storedNodes[i].ID < storedNodes[j].ID })
	for i, node := range storedNodes {
		snap.nodes = append(snap.nodes, &nodeRef{ID: node.ID})
		snap.index[node.ID] = i
		snap.neighbors[i] = make(map[int]struct{})
	}

	for _, edge := range storedEdges {
		src, ok := snap.index[edge.SourceID]
		if !ok {
			continue
		}
		dst, ok := snap.index[edge.TargetID]
		if !ok {
			continue
		}
		if src == dst {
			continue
		}
		snap.out[src] = append(snap.out[src], dst)
		snap.neighbors[src][dst] = struct{}{}
		snap.neighbors[dst][src] = struct{}{}
		snap.weightedAdj[src] = append(snap.weightedAdj[src], weighted{target: dst, weight: edge.Weight})
		snap.weightedAdj[dst] = append(snap.weightedAdj[dst], weighted{target: src, weight: edge.Weight})
	}

	return snap, nil
}

// pageRank runs fixed-iteration power iteration with uniform init and
// inverse out-degree flow. Dangling mass is redistributed uniformly so
// ranks always sum to 1 for a fixed snapshot.
func (s *snapshot) pageRank(damping float64, iterations int) []float64 {
	n := len(s.nodes)
	ranks := make([]float64, n)
	if n == 0 {
		return ranks
	}

	init := 1.0 / float64(n)
	for i := range ranks {
		ranks[i] = init
	}

	next := make([]float64, n)
	for iter := 0; iter < iterations; iter++ {
		base := (1 - damping) / float64(n)
		for i := range next {
			next[i] = base
		}

		dangling := 0.0
		for i, targets := range s.out {
			if len(targets) == 0 {
				dangling += ranks[i]
				continue
			}
			share := damping * ranks[i] / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}
		if dangling > 0 {
			spread := damping * dangling / float64(n)
			for i := range next {
				next[i] += spread
			}
		}

		ranks, next = next, ranks
	}
	return ranks
}

// degreeCentrality is the distinct out-degree normalized by N-1.
func (s *snapshot) degreeCentrality(idx int) float64 {
	n := len(s.nodes)
	if n < 2 {
		return 0
	}
	distinct := make(map[int]struct{}, len(s.out[idx]))
	for _, t := range s.out[idx] {
		distinct[t] = struct{}{}
	}
	return float64(len(distinct)) / float64(n-1)
}

// clusterDensity is the fraction of realized directed edges among the
// node's neighbor set relative to the maximum possible.
func (s *snapshot) clusterDensity(idx int) float64 {
	neighbors := s.neighbors[idx]
	k := len(neighbors)
	if k < 2 {
		return 0
	}

	realized := 0
	for from := range neighbors {
		seen := make(map[int]struct{}, len(s.out[from]))
		for _, to := range s.out[from] {
			if to == idx || to == from {
				continue
			}
			if _, ok := neighbors[to]; !ok {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = struct{}{}
			realized++
		}
	}
	return float64(realized) / float64(k*(k-1))
}

// communities assigns cluster IDs via breadth-first traversal restricted
// to edges above the weight threshold. IDs are assigned in ascending node
// ID order, so the labeling is deterministic for a fixed snapshot.
func (s *snapshot) communities(threshold float64) []int {
	n := len(s.nodes)
	clusters := make([]int, n)
	for i := range clusters {
		clusters[i] = -1
	}

	next := 0
	for start := 0; start < n; start++ {
		if clusters[start] != -1 {
			continue
		}
		clusters[start] = next
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, w := range s.weightedAdj[cur] {
				if w.weight <= threshold {
					continue
				}
				if clusters[w.target] != -1 {
					continue
				}
				clusters[w.target] = next
				queue = append(queue, w.target)
			}
		}
		next++
	}
	return clusters
}
