package memory

// Edge is an unordered pair of distinct node identifiers, stored with A < B
type Edge struct {
	A string
	B string
}

// NewEdge returns the canonical edge between two nodes
func NewEdge(x, y string) Edge {
	if y < x {
		x, y = y, x
	}
	return Edge{A: x, B: y}
}

// String renders the edge as "A-B"
func (e Edge) String() string {
	return e.A + "-" + e.B
}
