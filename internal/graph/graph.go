// Package graph is the engine's typed node/edge link graph: file and topic
// nodes, link and semantic edges, neighbour expansion (including the
// ontology-folder "sibling" mode) and degree-based centrality. Nodes live
// in a flat arena and edges reference them by integer id, resolving back
// to paths only at API boundaries.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/arborlens/vaultengine/internal/persistence"
)

// SiblingDecay scales the score of a 2-hop ontology-mode neighbour
// relative to its direct edge weight.
const SiblingDecay = 0.6

// Direction filters Neighbors by edge traversal direction.
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
	DirectionBoth
)

// Mode selects plain adjacency vs. ontology sibling expansion.
type Mode int

const (
	ModeSimple Mode = iota
	ModeOntology
)

// Neighbor is one result of a neighbour expansion.
type Neighbor struct {
	Path   string
	Weight float64
}

type edgeKey struct {
	from, to int
	typ      persistence.EdgeType
}

// Graph is a worker-owned, non-concurrent-safe mixed graph keyed by
// canonical path. Callers are responsible for serialising mutations.
type Graph struct {
	ontologyFolder string

	nodes      []persistence.Node
	idOfPath   map[string]int
	outEdges   map[int][]persistence.Edge
	inEdges    map[int][]persistence.Edge
	edgeLookup map[edgeKey]int // index into the owning node's edge slice, for max-weight merge
	hubs       map[string]bool

	aliases map[string]string // lower-cased alias text -> canonical path
}

// New creates an empty Graph. ontologyFolder is the vault-relative folder
// (e.g. "Ontology") whose topic nodes qualify for ontology-mode expansion.
func New(ontologyFolder string) *Graph {
	return &Graph{
		ontologyFolder: ontologyFolder,
		idOfPath:       make(map[string]int),
		outEdges:       make(map[int][]persistence.Edge),
		inEdges:        make(map[int][]persistence.Edge),
		edgeLookup:     make(map[edgeKey]int),
		hubs:           make(map[string]bool),
		aliases:        make(map[string]string),
	}
}

// SetAlias registers alias as another name for canonicalPath, so a later
// link target matching alias (case-insensitively) resolves to
// canonicalPath instead of creating a separate topic node. Re-registering
// an alias under a new path overwrites the old mapping.
func (g *Graph) SetAlias(alias, canonicalPath string) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return
	}
	g.aliases[alias] = canonicalPath
}

// ResolveAlias looks up text (case-insensitively) against the registered
// alias map, returning the canonical path it was registered against.
func (g *Graph) ResolveAlias(text string) (string, bool) {
	path, ok := g.aliases[strings.ToLower(strings.TrimSpace(text))]
	return path, ok
}

// Aliases returns a snapshot of the full alias map, for persistence.
func (g *Graph) Aliases() map[string]string {
	out := make(map[string]string, len(g.aliases))
	for k, v := range g.aliases {
		out[k] = v
	}
	return out
}

// PromoteToFile upgrades an existing topic node (an unresolved link target)
// to a file node once the real document at path is indexed. A no-op if the
// node doesn't exist yet or is already a file node.
func (g *Graph) PromoteToFile(path string) {
	id, ok := g.idOfPath[path]
	if !ok {
		return
	}
	g.nodes[id].Kind = persistence.NodeKindFile
}

// EnsureNode returns the id for path, creating a node of kind if absent.
func (g *Graph) EnsureNode(path string, kind persistence.NodeKind) int {
	if id, ok := g.idOfPath[path]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, persistence.Node{ID: id, Path: path, Kind: kind})
	g.idOfPath[path] = id
	return id
}

// NodePath resolves an id back to its path; used only at API boundaries.
func (g *Graph) NodePath(id int) (string, bool) {
	if id < 0 || id >= len(g.nodes) {
		return "", false
	}
	return g.nodes[id].Path, true
}

// AddEdge adds (or merges) an edge u->v of the given type. Duplicate edges
// are merged by taking the max weight.
func (g *Graph) AddEdge(u, v string, typ persistence.EdgeType, weight float64, source string) {
	uID := g.EnsureNode(u, persistence.NodeKindFile)
	vID := g.EnsureNode(v, persistence.NodeKindFile)

	key := edgeKey{from: uID, to: vID, typ: typ}
	if idx, ok := g.edgeLookup[key]; ok {
		existing := &g.outEdges[uID][idx]
		if weight > existing.Weight {
			existing.Weight = weight
			existing.Source = source
		}
		// Keep the mirrored inbound record's weight in sync.
		for i := range g.inEdges[vID] {
			if g.inEdges[vID][i].From == uID && g.inEdges[vID][i].To == vID && g.inEdges[vID][i].Type == typ {
				g.inEdges[vID][i].Weight = existing.Weight
				break
			}
		}
		return
	}

	edge := persistence.Edge{From: uID, To: vID, Type: typ, Weight: weight, Source: source}
	g.outEdges[uID] = append(g.outEdges[uID], edge)
	g.edgeLookup[key] = len(g.outEdges[uID]) - 1
	g.inEdges[vID] = append(g.inEdges[vID], edge)
}

// RemoveNode deletes path and every edge touching it, preserving the
// edge-referential-integrity invariant.
func (g *Graph) RemoveNode(path string) {
	id, ok := g.idOfPath[path]
	if !ok {
		return
	}
	delete(g.idOfPath, path)
	g.nodes[id].Path = "" // tombstone; id slots are not reused

	for _, e := range g.outEdges[id] {
		g.removeInboundRecord(e.To, id, e.Type)
	}
	for _, e := range g.inEdges[id] {
		g.removeOutboundRecord(e.From, id, e.Type)
	}
	delete(g.outEdges, id)
	delete(g.inEdges, id)
}

func (g *Graph) removeInboundRecord(node, from int, typ persistence.EdgeType) {
	edges := g.inEdges[node]
	out := edges[:0]
	for _, e := range edges {
		if e.From == from && e.Type == typ {
			continue
		}
		out = append(out, e)
	}
	g.inEdges[node] = out
}

func (g *Graph) removeOutboundRecord(node, to int, typ persistence.EdgeType) {
	delete(g.edgeLookup, edgeKey{from: node, to: to, typ: typ})
	edges := g.outEdges[node]
	out := edges[:0]
	for _, e := range edges {
		if e.To == to && e.Type == typ {
			continue
		}
		out = append(out, e)
	}
	g.outEdges[node] = out
}

// Neighbors returns path's neighbours in the requested direction. In
// ontology mode, 2-hop neighbours reached through a topic node under the
// configured ontology folder are included, scored by weight*SiblingDecay;
// direct neighbours are still returned at their direct weight.
func (g *Graph) Neighbors(path string, direction Direction, mode Mode) []Neighbor {
	id, ok := g.idOfPath[path]
	if !ok {
		return nil
	}

	direct := g.directNeighbors(id, direction)
	if mode == ModeSimple {
		return dedupBestWeight(direct)
	}

	var siblings []Neighbor
	for _, mid := range g.directNeighborIDs(id, direction) {
		node := g.nodes[mid]
		if node.Kind != persistence.NodeKindTopic || !g.underOntologyFolder(node.Path) {
			continue
		}
		for _, sib := range g.directNeighbors(mid, direction) {
			if sib.Path == path {
				continue
			}
			siblings = append(siblings, Neighbor{Path: sib.Path, Weight: sib.Weight * SiblingDecay})
		}
	}

	return dedupBestWeight(append(direct, siblings...))
}

func (g *Graph) underOntologyFolder(path string) bool {
	if g.ontologyFolder == "" {
		return false
	}
	prefix := strings.TrimSuffix(g.ontologyFolder, "/") + "/"
	return strings.HasPrefix(path, prefix)
}

func (g *Graph) directNeighborIDs(id int, direction Direction) []int {
	seen := make(map[int]bool)
	var ids []int
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			ids = append(ids, n)
		}
	}
	if direction == DirectionOutbound || direction == DirectionBoth {
		for _, e := range g.outEdges[id] {
			add(e.To)
		}
	}
	if direction == DirectionInbound || direction == DirectionBoth {
		for _, e := range g.inEdges[id] {
			add(e.From)
		}
	}
	return ids
}

func (g *Graph) directNeighbors(id int, direction Direction) []Neighbor {
	var out []Neighbor
	if direction == DirectionOutbound || direction == DirectionBoth {
		for _, e := range g.outEdges[id] {
			if path, ok := g.NodePath(e.To); ok && path != "" {
				out = append(out, Neighbor{Path: path, Weight: e.Weight})
			}
		}
	}
	if direction == DirectionInbound || direction == DirectionBoth {
		for _, e := range g.inEdges[id] {
			if path, ok := g.NodePath(e.From); ok && path != "" {
				out = append(out, Neighbor{Path: path, Weight: e.Weight})
			}
		}
	}
	return out
}

func dedupBestWeight(neighbors []Neighbor) []Neighbor {
	best := make(map[string]float64)
	for _, n := range neighbors {
		if w, ok := best[n.Path]; !ok || n.Weight > w {
			best[n.Path] = n.Weight
		}
	}
	out := make([]Neighbor, 0, len(best))
	for path, w := range best {
		out = append(out, Neighbor{Path: path, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// SetHubs designates high-degree nodes exempt from centrality dampening
// (e.g. a vault's index/home note), replacing any earlier set.
func (g *Graph) SetHubs(paths []string) {
	g.hubs = make(map[string]bool, len(paths))
	for _, p := range paths {
		g.hubs[p] = true
	}
}

// Centrality returns path's in-degree centrality, normalised to [0,1] and
// dampened by 1/log(degree+1) unless path is a designated hub.
func (g *Graph) Centrality(path string) float64 {
	id, ok := g.idOfPath[path]
	if !ok {
		return 0
	}
	degree := len(g.inEdges[id])
	if degree == 0 {
		return 0
	}
	raw := float64(degree)
	if !g.hubs[path] {
		raw = raw / math.Log(float64(degree)+1)
	}
	maxDegree := g.maxInDegree()
	if maxDegree == 0 {
		return 0
	}
	score := raw / float64(maxDegree)
	if score > 1 {
		score = 1
	}
	return score
}

// BatchCentrality computes Centrality for every path in paths.
func (g *Graph) BatchCentrality(paths []string) map[string]float64 {
	out := make(map[string]float64, len(paths))
	for _, p := range paths {
		out[p] = g.Centrality(p)
	}
	return out
}

func (g *Graph) maxInDegree() int {
	max := 0
	for _, edges := range g.inEdges {
		if len(edges) > max {
			max = len(edges)
		}
	}
	return max
}

// Snapshot exports the graph's nodes and edges for persistence.
func (g *Graph) Snapshot() ([]persistence.Node, []persistence.Edge) {
	var edges []persistence.Edge
	for _, list := range g.outEdges {
		edges = append(edges, list...)
	}
	nodes := make([]persistence.Node, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes, edges
}

// FromState rebuilds a Graph from persisted nodes, edges and aliases.
func FromState(nodes []persistence.Node, edges []persistence.Edge, ontologyFolder string) *Graph {
	return FromStateWithAliases(nodes, edges, nil, ontologyFolder)
}

// FromStateWithAliases is FromState plus the persisted alias map.
func FromStateWithAliases(nodes []persistence.Node, edges []persistence.Edge, aliases map[string]string, ontologyFolder string) *Graph {
	g := New(ontologyFolder)
	for _, n := range nodes {
		g.EnsureNode(n.Path, n.Kind)
	}
	for _, e := range edges {
		from, okFrom := g.NodePath(e.From)
		to, okTo := g.NodePath(e.To)
		if !okFrom || !okTo {
			continue
		}
		g.AddEdge(from, to, e.Type, e.Weight, e.Source)
	}
	for alias, path := range aliases {
		g.aliases[alias] = path
	}
	return g
}
