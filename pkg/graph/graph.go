package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicateNode is returned when a logical ID is declared twice
	ErrDuplicateNode = errors.New("duplicate resource")

	// ErrUnknownNode is returned when an edge targets an undeclared resource
	ErrUnknownNode = errors.New("unknown resource")

	// ErrCycle is returned when the depends-on relation is not acyclic
	ErrCycle = errors.New("dependency cycle")
)

// EdgeKind distinguishes how a dependency was declared
type EdgeKind string

const (
	// EdgeReference is implied by a Ref or Attr inside a resource's properties
	EdgeReference EdgeKind = "reference"

	// EdgeExplicit is an ordering-only dependency with no shared value
	EdgeExplicit EdgeKind = "explicit"
)

// Node is a single typed resource declaration
type Node struct {
	ID             string
	Type           string
	Properties     map[string]any
	DeletionPolicy string
}

// Edge is a depends-on relation from one node to another
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Output is a value the engine reports back after materializing the graph
type Output struct {
	Name        string
	Description string
	Value       any
}

// Graph is a directed acyclic graph of resource declarations
type Graph struct {
	nodes   map[string]*Node
	order   []string
	edges   map[string]map[string]EdgeKind
	outputs []Output
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]map[string]EdgeKind),
	}
}

// AddNode declares a resource and records every reference in its properties as an edge
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("resource of type %s has no logical ID", n.Type)
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}

	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)

	for _, target := range References(n.Properties) {
		if target == n.ID {
			continue
		}
		g.addEdge(n.ID, target, EdgeReference)
	}
	return nil
}

// DependOn records an explicit ordering edge: from is created after to
func (g *Graph) DependOn(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	if from == to {
		return fmt.Errorf("%w: %s depends on itself", ErrCycle, from)
	}
	g.edges[from] = ensure(g.edges[from])
	g.edges[from][to] = EdgeExplicit
	return nil
}

func (g *Graph) addEdge(from, to string, kind EdgeKind) {
	g.edges[from] = ensure(g.edges[from])
	// An explicit edge is never downgraded to a reference edge
	if g.edges[from][to] == EdgeExplicit {
		return
	}
	g.edges[from][to] = kind
}

func ensure(m map[string]EdgeKind) map[string]EdgeKind {
	if m == nil {
		return make(map[string]EdgeKind)
	}
	return m
}

// AddOutput declares a value to report after provisioning
func (g *Graph) AddOutput(o Output) {
	g.outputs = append(g.outputs, o)
}

// Outputs returns the declared outputs in declaration order
func (g *Graph) Outputs() []Output {
	return append([]Output(nil), g.outputs...)
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodesOfType returns nodes of a resource type in declaration order
func (g *Graph) NodesOfType(typ string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if g.nodes[id].Type == typ {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.order)
}

// CountByType returns the number of nodes per resource type
func (g *Graph) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, n := range g.nodes {
		counts[n.Type]++
	}
	return counts
}

// DependenciesOf returns the outgoing edges of a node sorted by target ID
func (g *Graph) DependenciesOf(id string) []Edge {
	targets := make([]string, 0, len(g.edges[id]))
	for to := range g.edges[id] {
		targets = append(targets, to)
	}
	sort.Strings(targets)

	out := make([]Edge, 0, len(targets))
	for _, to := range targets {
		out = append(out, Edge{From: id, To: to, Kind: g.edges[id][to]})
	}
	return out
}

// ExplicitDependenciesOf returns the targets of explicit edges sorted by ID
func (g *Graph) ExplicitDependenciesOf(id string) []string {
	var out []string
	for _, e := range g.DependenciesOf(id) {
		if e.Kind == EdgeExplicit {
			out = append(out, e.To)
		}
	}
	return out
}

// HasDependency reports whether from depends directly on to
func (g *Graph) HasDependency(from, to string) bool {
	_, ok := g.edges[from][to]
	return ok
}

// DependsTransitively reports whether from depends on to through any path
func (g *Graph) DependsTransitively(from, to string) bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.edges[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Validate checks that every edge targets a declared node and the graph is acyclic
func (g *Graph) Validate() error {
	var errs []error
	for _, from := range g.order {
		for _, e := range g.DependenciesOf(from) {
			if _, ok := g.nodes[e.To]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s references %s", ErrUnknownNode, from, e.To))
			}
		}
	}
	for _, o := range g.outputs {
		for _, target := range References(o.Value) {
			if _, ok := g.nodes[target]; !ok {
				errs = append(errs, fmt.Errorf("%w: output %s references %s", ErrUnknownNode, o.Name, target))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	_, err := g.Order()
	return err
}

// Order returns node IDs so that every node follows all of its dependencies.
// Ties are broken by declaration order, so the result is deterministic.
func (g *Graph) Order() ([]string, error) {
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	remaining := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)
	for _, id := range g.order {
		for to := range g.edges[id] {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("%w: %s references %s", ErrUnknownNode, id, to)
			}
			remaining[id]++
			dependents[to] = append(dependents[to], id)
		}
	}

	var ready []string
	for _, id := range g.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)

		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(out) != len(g.order) {
		var stuck []string
		for _, id := range g.order {
			if remaining[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return out, nil
}

// ReverseOrder returns the teardown order: dependents before their dependencies
func (g *Graph) ReverseOrder() ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
