package hyperpath

import (
	"context"
	"sort"
	"sync"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/telemetry"
)

// Hypergraph is a dynamic, weighted directed hypergraph keyed by node id.
// Reads (findShortestHyperpath) take the read lock; applyUpdate takes the
// write lock, so a single edge addition never blocks unrelated queries for
// longer than the mutation itself.
type Hypergraph struct {
	mu    sync.RWMutex
	nodes map[string]bool
	edges map[string]*Hyperedge

	// outgoing[nodeID] lists the ids of edges whose Sources contain nodeID.
	outgoing map[string][]string

	logger core.Logger

	cacheMu sync.Mutex
	cache   map[string]*cachedResult
}

type cachedResult struct {
	result   HyperpathResult
	usedEdge map[string]bool
}

// New constructs an empty hypergraph.
func New(logger core.Logger) *Hypergraph {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/hyperpath")
	}
	return &Hypergraph{
		nodes:    make(map[string]bool),
		edges:    make(map[string]*Hyperedge),
		outgoing: make(map[string][]string),
		logger:   logger,
		cache:    make(map[string]*cachedResult),
	}
}

// ApplyUpdate mutates the hypergraph atomically and invalidates only the
// cached shortest-hyperpath results whose witness used the touched edge or
// node, leaving unrelated cached results untouched.
func (h *Hypergraph) ApplyUpdate(ctx context.Context, update Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch update.Kind {
	case UpdateNodeAdd:
		h.nodes[update.NodeID] = true
		h.invalidateForNode(update.NodeID)
	case UpdateEdgeAdd:
		if update.Edge == nil {
			return core.NewFrameworkError("hyperpath.ApplyUpdate", core.KindInvalidArgument, core.ErrInvalidArgument)
		}
		h.putEdge(update.Edge)
		h.invalidateForEdge(update.Edge.ID)
	case UpdateEdgeRemove:
		h.removeEdge(update.EdgeID)
		h.invalidateForEdge(update.EdgeID)
	case UpdateEdgeReweight:
		e, ok := h.edges[update.EdgeID]
		if !ok {
			return core.NewFrameworkError("hyperpath.ApplyUpdate", core.KindNotFound, core.ErrNotFound).WithID(update.EdgeID)
		}
		e.Weight = update.Weight
		h.invalidateForEdge(update.EdgeID)
	default:
		return core.NewFrameworkError("hyperpath.ApplyUpdate", core.KindInvalidArgument, core.ErrInvalidArgument)
	}

	telemetry.Counter("hyperpath.update", "kind", string(update.Kind))
	if h.logger != nil {
		h.logger.Debug("hyperpath update applied", map[string]interface{}{
			"kind": update.Kind,
			"edge": update.EdgeID,
			"node": update.NodeID,
		})
	}
	return nil
}

func (h *Hypergraph) putEdge(e *Hyperedge) {
	h.removeEdge(e.ID)
	cp := *e
	h.edges[e.ID] = &cp
	for _, s := range e.Sources {
		h.nodes[s] = true
		h.outgoing[s] = append(h.outgoing[s], e.ID)
	}
	for _, t := range e.Targets {
		h.nodes[t] = true
	}
}

func (h *Hypergraph) removeEdge(id string) {
	old, ok := h.edges[id]
	if !ok {
		return
	}
	delete(h.edges, id)
	for _, s := range old.Sources {
		ids := h.outgoing[s]
		for i, eid := range ids {
			if eid == id {
				h.outgoing[s] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// invalidateForEdge and invalidateForNode drop only cache entries whose
// witness path depended on the touched edge/node, not the whole cache.
func (h *Hypergraph) invalidateForEdge(edgeID string) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	for key, entry := range h.cache {
		if entry.usedEdge[edgeID] {
			delete(h.cache, key)
		}
	}
}

func (h *Hypergraph) invalidateForNode(nodeID string) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	for key, entry := range h.cache {
		for _, n := range entry.result.NodeSequence {
			if n == nodeID {
				delete(h.cache, key)
				break
			}
		}
	}
}

// FindShortestHyperpath computes the minimum-weight B-hyperpath from
// source to target: a hyperedge only fires once every node in its Sources
// set has been settled, and its firing cost is Weight plus the maximum
// settled distance among its sources. Ties are broken by (a) fewer
// hyperedges used, then (b) lexicographically smaller edge id sequence.
func (h *Hypergraph) FindShortestHyperpath(ctx context.Context, source, target string) HyperpathResult {
	cacheKey := source + "->" + target

	h.cacheMu.Lock()
	if cached, ok := h.cache[cacheKey]; ok {
		h.cacheMu.Unlock()
		return cached.result
	}
	h.cacheMu.Unlock()

	h.mu.RLock()
	result, used := h.computeShortestHyperpath(source, target)
	h.mu.RUnlock()

	h.cacheMu.Lock()
	h.cache[cacheKey] = &cachedResult{result: result, usedEdge: used}
	h.cacheMu.Unlock()

	telemetry.Counter("hyperpath.query", "found", boolLabel(result.Found))
	telemetry.Histogram("hyperpath.query.weight", result.TotalWeight)
	return result
}

type settleState struct {
	dist     float64
	hopCount int
	viaEdge  string
	viaPred  []string // predecessor nodes consumed by viaEdge
}

func (h *Hypergraph) computeShortestHyperpath(source, target string) (HyperpathResult, map[string]bool) {
	if source == target {
		return HyperpathResult{Found: true, TotalWeight: 0, NodeSequence: []string{source}}, map[string]bool{}
	}

	settled := make(map[string]*settleState)
	settled[source] = &settleState{dist: 0}

	frontier := []string{source}
	for len(frontier) > 0 {
		sort.Strings(frontier) // deterministic processing order for tie-breaking
		cur := frontier[0]
		frontier = frontier[1:]

		for _, edgeID := range h.outgoing[cur] {
			e, ok := h.edges[edgeID]
			if !ok {
				continue
			}
			if !allSettled(e.Sources, settled) {
				continue
			}
			maxSourceDist := 0.0
			for _, s := range e.Sources {
				if d := settled[s].dist; d > maxSourceDist {
					maxSourceDist = d
				}
			}
			candidateDist := maxSourceDist + e.Weight
			candidateHops := maxHop(e.Sources, settled) + 1

			for _, t := range e.Targets {
				existing, ok := settled[t]
				better := !ok ||
					candidateDist < existing.dist ||
					(candidateDist == existing.dist && candidateHops < existing.hopCount) ||
					(candidateDist == existing.dist && candidateHops == existing.hopCount && (!ok || edgeID < existing.viaEdge))
				if better {
					settled[t] = &settleState{
						dist:     candidateDist,
						hopCount: candidateHops,
						viaEdge:  edgeID,
						viaPred:  append([]string{}, e.Sources...),
					}
					frontier = append(frontier, t)
				}
			}
		}
	}

	targetState, ok := settled[target]
	if !ok {
		return HyperpathResult{Found: false, TotalWeight: posInf()}, map[string]bool{}
	}

	sequence, edgeList := reconstructPath(settled, source, target)
	used := make(map[string]bool, len(edgeList))
	for _, id := range edgeList {
		used[id] = true
	}
	return HyperpathResult{
		Found:        true,
		TotalWeight:  targetState.dist,
		NodeSequence: sequence,
		Edges:        edgeList,
	}, used
}

func allSettled(nodes []string, settled map[string]*settleState) bool {
	for _, n := range nodes {
		if _, ok := settled[n]; !ok {
			return false
		}
	}
	return true
}

func maxHop(nodes []string, settled map[string]*settleState) int {
	max := 0
	for _, n := range nodes {
		if s, ok := settled[n]; ok && s.hopCount > max {
			max = s.hopCount
		}
	}
	return max
}

// reconstructPath walks the critical predecessor chain from target back to
// source: at each step it follows the source node that determined the
// firing cost (the maximum-distance source of viaEdge), so every
// consecutive pair in the returned sequence is directly connected by
// viaEdge. Parallel co-sources of a multi-source hyperedge are reflected
// in Edges but not flattened into the linear sequence.
func reconstructPath(settled map[string]*settleState, source, target string) ([]string, []string) {
	var nodeOrder []string
	var edgeOrder []string
	visitedEdge := make(map[string]bool)

	node := target
	for node != source {
		state := settled[node]
		if state == nil || state.viaEdge == "" {
			break
		}
		if !visitedEdge[state.viaEdge] {
			visitedEdge[state.viaEdge] = true
			edgeOrder = append([]string{state.viaEdge}, edgeOrder...)
		}
		nodeOrder = append([]string{node}, nodeOrder...)

		critical := state.viaPred[0]
		for _, pred := range state.viaPred[1:] {
			if settled[pred] != nil && settled[critical] != nil && settled[pred].dist > settled[critical].dist {
				critical = pred
			}
		}
		node = critical
	}
	nodeOrder = append([]string{source}, nodeOrder...)
	return nodeOrder, edgeOrder
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func posInf() float64 {
	var inf float64 = 1
	for i := 0; i < 4; i++ {
		inf *= 1e300
	}
	return inf
}
