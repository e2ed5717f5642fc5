package memory

import (
	"fmt"
	"maps"
)

// initialBins is the number of histogram slots allocated up front
const initialBins = 16

// Direction is a single-unit degree change
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

// DegreeGraph holds the degree of every node with at least one active edge,
// together with a histogram of how many nodes sit at each degree.
//
// Invariants: a node is tallied iff its degree is >= 1, and the histogram
// bins sum to the number of tallied nodes.
type DegreeGraph struct {
	tally map[string]int // node -> degree
	bins  []int          // degree -> node count, bins[0] unused
}

// NewDegreeGraph creates an empty degree graph
func NewDegreeGraph() *DegreeGraph {
	return &DegreeGraph{
		tally: make(map[string]int),
		bins:  make([]int, initialBins),
	}
}

// Seed initializes an empty graph from a single edge.
// Both endpoints get degree 1 directly.
func (g *DegreeGraph) Seed(e Edge) {
	g.Reset()
	g.tally[e.A] = 1
	g.tally[e.B] = 1
	g.bins[1] = 2
}

// Bump moves a node's degree one unit in the given direction and shifts its
// histogram count accordingly
func (g *DegreeGraph) Bump(node string, dir Direction) {
	old := g.tally[node]
	next := old + int(dir)
	if next < 0 {
		panic(fmt.Sprintf("memory: degree of %q would drop below zero", node))
	}

	if old > 0 {
		g.bins[old]--
	}

	// Nodes reaching zero leave the tally
	if next == 0 {
		delete(g.tally, node)
		g.trim()
		return
	}

	g.tally[node] = next
	for next >= len(g.bins) {
		g.bins = append(g.bins, 0)
	}
	g.bins[next]++
	if dir == Down {
		g.trim()
	}
}

// ApplyEdge bumps both endpoints of an edge
func (g *DegreeGraph) ApplyEdge(e Edge, dir Direction) {
	g.Bump(e.A, dir)
	g.Bump(e.B, dir)
}

// Degree returns the degree of a node, 0 if absent
func (g *DegreeGraph) Degree(node string) int {
	return g.tally[node]
}

// NodeCount returns the number of tallied nodes
func (g *DegreeGraph) NodeCount() int {
	return len(g.tally)
}

// MaxDegree returns the highest populated degree, 0 when empty
func (g *DegreeGraph) MaxDegree() int {
	for d := len(g.bins) - 1; d > 0; d-- {
		if g.bins[d] > 0 {
			return d
		}
	}
	return 0
}

// Bins exposes the histogram without copying; callers must not modify it
func (g *DegreeGraph) Bins() []int {
	return g.bins
}

// Histogram returns a copy of the histogram trimmed to the highest populated degree
func (g *DegreeGraph) Histogram() []int {
	return append([]int(nil), g.bins[:g.MaxDegree()+1]...)
}

// Degrees returns a copy of the tally
func (g *DegreeGraph) Degrees() map[string]int {
	return maps.Clone(g.tally)
}

// GetStats returns the node count and the sum of all degrees
func (g *DegreeGraph) GetStats() (nodeCount, degreeSum int) {
	for _, d := range g.tally {
		degreeSum += d
	}
	return len(g.tally), degreeSum
}

// Reset empties the tally and the histogram
func (g *DegreeGraph) Reset() {
	clear(g.tally)
	g.bins = make([]int, initialBins)
}

// Validate checks the tally and histogram against each other
func (g *DegreeGraph) Validate() error {
	recount := make([]int, len(g.bins))
	for node, d := range g.tally {
		if d < 1 {
			return fmt.Errorf("node %q tallied with degree %d", node, d)
		}
		if d >= len(recount) {
			return fmt.Errorf("node %q has degree %d beyond histogram size %d", node, d, len(g.bins))
		}
		recount[d]++
	}

	sum := 0
	for d := 1; d < len(g.bins); d++ {
		if g.bins[d] < 0 {
			return fmt.Errorf("histogram bin %d is negative: %d", d, g.bins[d])
		}
		if g.bins[d] != recount[d] {
			return fmt.Errorf("histogram bin %d holds %d, tally has %d", d, g.bins[d], recount[d])
		}
		sum += g.bins[d]
	}

	if sum != len(g.tally) {
		return fmt.Errorf("histogram sums to %d, tally has %d nodes", sum, len(g.tally))
	}
	return nil
}

// trim drops empty trailing bins above the initial allocation
func (g *DegreeGraph) trim() {
	n := len(g.bins)
	for n > initialBins && g.bins[n-1] == 0 {
		n--
	}
	g.bins = g.bins[:n]
}
