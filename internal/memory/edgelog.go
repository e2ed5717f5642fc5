package memory

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/btree"
)

// EdgeTimeLog holds, per timestamp, the edges observed at that instant.
//
// Timestamps are kept as Unix nanoseconds. A B-tree orders the distinct bucket
// timestamps so the oldest bucket is found in O(log n) regardless of arrival
// order, and a reverse index maps every edge to the buckets holding it, which
// makes duplicate lookups O(1) instead of a scan over all buckets.
//
// An edge is active while at least one of its occurrences remains in the log.
// EdgeTimeLog is not safe for concurrent use.
type EdgeTimeLog struct {
	buckets     map[int64]map[Edge]struct{} // timestamp -> edges seen at that timestamp
	index       *btree.BTreeG[int64]        // distinct bucket timestamps, ascending
	occurrences map[Edge][]int64            // edge -> ascending timestamps of its buckets
}

func lessTimestamp(a, b int64) bool {
	return a < b
}

// NewEdgeTimeLog creates an empty log
func NewEdgeTimeLog() *EdgeTimeLog {
	return &EdgeTimeLog{
		buckets:     make(map[int64]map[Edge]struct{}),
		index:       btree.NewBTreeGOptions(lessTimestamp, btree.Options{NoLocks: true}),
		occurrences: make(map[Edge][]int64),
	}
}

// Insert adds an occurrence of the edge at ts.
// Returns false if the edge was already present in that bucket.
func (l *EdgeTimeLog) Insert(e Edge, ts time.Time) bool {
	key := ts.UnixNano()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = make(map[Edge]struct{})
		l.buckets[key] = bucket
		l.index.Set(key)
	}

	if _, dup := bucket[e]; dup {
		return false
	}
	bucket[e] = struct{}{}

	occ := l.occurrences[e]
	i, _ := slices.BinarySearch(occ, key)
	l.occurrences[e] = slices.Insert(occ, i, key)
	return true
}

// EvictUpTo drops every bucket whose timestamp is <= cutoff, oldest first.
// It returns the edges whose last occurrence left the log; those are the
// edges that stopped being active and whose degrees must be released.
func (l *EdgeTimeLog) EvictUpTo(cutoff time.Time) []Edge {
	limit := cutoff.UnixNano()

	var released []Edge
	for {
		key, ok := l.index.Min()
		if !ok || key > limit {
			break
		}

		for e := range l.buckets[key] {
			if l.dropOccurrence(e, key) {
				released = append(released, e)
			}
		}

		delete(l.buckets, key)
		l.index.Delete(key)
	}

	return released
}

// Find returns the most recent timestamp at which the edge occurs
func (l *EdgeTimeLog) Find(e Edge) (time.Time, bool) {
	occ := l.occurrences[e]
	if len(occ) == 0 {
		return time.Time{}, false
	}
	return fromKey(occ[len(occ)-1]), true
}

// Contains reports whether the edge is active
func (l *EdgeTimeLog) Contains(e Edge) bool {
	return len(l.occurrences[e]) > 0
}

// Remove deletes the occurrence of the edge at ts.
// Returns false if there was no such occurrence.
func (l *EdgeTimeLog) Remove(e Edge, ts time.Time) bool {
	key := ts.UnixNano()

	bucket, ok := l.buckets[key]
	if !ok {
		return false
	}
	if _, present := bucket[e]; !present {
		return false
	}

	delete(bucket, e)
	if len(bucket) == 0 {
		delete(l.buckets, key)
		l.index.Delete(key)
	}

	l.dropOccurrence(e, key)
	return true
}

// RemoveBefore deletes every occurrence of the edge strictly older than ts
// and returns how many were removed
func (l *EdgeTimeLog) RemoveBefore(e Edge, ts time.Time) int {
	limit := ts.UnixNano()

	var older []int64
	for _, key := range l.occurrences[e] {
		if key >= limit {
			break
		}
		older = append(older, key)
	}

	for _, key := range older {
		l.Remove(e, fromKey(key))
	}
	return len(older)
}

// Occurrences returns the ascending timestamps at which the edge occurs
func (l *EdgeTimeLog) Occurrences(e Edge) []time.Time {
	occ := l.occurrences[e]
	out := make([]time.Time, len(occ))
	for i, key := range occ {
		out[i] = fromKey(key)
	}
	return out
}

// Oldest returns the earliest bucket timestamp
func (l *EdgeTimeLog) Oldest() (time.Time, bool) {
	key, ok := l.index.Min()
	if !ok {
		return time.Time{}, false
	}
	return fromKey(key), true
}

// Edges returns the number of active edges
func (l *EdgeTimeLog) Edges() int {
	return len(l.occurrences)
}

// Buckets returns the number of distinct timestamps held
func (l *EdgeTimeLog) Buckets() int {
	return l.index.Len()
}

// ActiveEdges returns the active edges sorted by endpoints
func (l *EdgeTimeLog) ActiveEdges() []Edge {
	edges := make([]Edge, 0, len(l.occurrences))
	for e := range l.occurrences {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		return cmp.Or(strings.Compare(x.A, y.A), strings.Compare(x.B, y.B))
	})
	return edges
}

// Reset discards every bucket
func (l *EdgeTimeLog) Reset() {
	l.buckets = make(map[int64]map[Edge]struct{})
	l.index = btree.NewBTreeGOptions(lessTimestamp, btree.Options{NoLocks: true})
	l.occurrences = make(map[Edge][]int64)
}

// dropOccurrence removes key from the reverse index of e and reports whether
// it was the edge's last occurrence
func (l *EdgeTimeLog) dropOccurrence(e Edge, key int64) bool {
	occ := l.occurrences[e]
	i, found := slices.BinarySearch(occ, key)
	if !found {
		return false
	}

	occ = slices.Delete(occ, i, i+1)
	if len(occ) == 0 {
		delete(l.occurrences, e)
		return true
	}
	l.occurrences[e] = occ
	return false
}

func fromKey(key int64) time.Time {
	return time.Unix(0, key).UTC()
}
