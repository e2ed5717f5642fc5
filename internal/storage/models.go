package storage

import "time"

// Run is one pass over an input, identified by a random UUID
type Run struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Events     int
}

// MedianRow is the median reported after one event
type MedianRow struct {
	RunID     string
	Seq       int
	EventTime time.Time
	Actor     string
	Target    string
	Outcome   string
	Median    float64
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	EventsSubmitted   int            `json:"events_submitted"`
	RecordsSkipped    int            `json:"records_skipped"`
	Outcomes          map[string]int `json:"outcomes"`
	EdgesEvicted      int            `json:"edges_evicted"`
	MedianChanges     int            `json:"median_changes"`
	LastMedian        float64        `json:"last_median"`
	PeakNodes         int            `json:"peak_nodes"`
	PeakEdges         int            `json:"peak_edges"`
	TerminationReason string         `json:"termination_reason"`
}
