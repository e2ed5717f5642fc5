package memory

// Median returns the median of a degree multiset described by its histogram.
//
// bins[d] is the number of nodes at degree d. For an odd nodeCount the median
// is the degree at rank (n+1)/2; for an even one it is the mean of the degrees
// at ranks n/2 and n/2+1, which may sit in different populated bins. The scan
// is O(max degree). ok is false when nodeCount is 0 or the histogram holds
// fewer than nodeCount nodes.
func Median(nodeCount int, bins []int) (median float64, ok bool) {
	if nodeCount <= 0 {
		return 0, false
	}

	lo := (nodeCount + 1) / 2
	hi := lo
	if nodeCount%2 == 0 {
		hi = nodeCount/2 + 1
	}

	seen := 0
	loDegree := 0
	for d := 1; d < len(bins); d++ {
		if bins[d] == 0 {
			continue
		}
		seen += bins[d]
		if loDegree == 0 && seen >= lo {
			loDegree = d
		}
		if seen >= hi {
			return float64(loDegree+d) / 2, true
		}
	}

	return 0, false
}

// MedianTracker caches the current median degree
type MedianTracker struct {
	value   float64
	defined bool
}

// Recompute refreshes the cached median from the histogram
func (m *MedianTracker) Recompute(nodeCount int, bins []int) (float64, bool) {
	m.value, m.defined = Median(nodeCount, bins)
	return m.value, m.defined
}

// Set stores a known median
func (m *MedianTracker) Set(value float64) {
	m.value = value
	m.defined = true
}

// Value returns the cached median; defined is false before any edge exists
func (m *MedianTracker) Value() (value float64, defined bool) {
	return m.value, m.defined
}

// Reset clears the cached median
func (m *MedianTracker) Reset() {
	m.value = 0
	m.defined = false
}
