package metrics

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/median-degree/internal/storage"
	"github.com/alvmarrod/median-degree/internal/window"
)

// Tracker holds and manages run metrics
type Tracker struct {
	mu   sync.Mutex
	data storage.Metrics
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
			Outcomes:  make(map[string]int),
		},
	}
}

// RecordResult accounts for one submitted event
func (t *Tracker) RecordResult(res window.Result, snap window.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EventsSubmitted++
	t.data.Outcomes[res.Outcome.String()]++
	t.data.EdgesEvicted += res.Evicted

	if res.Defined && res.Median != t.data.LastMedian {
		t.data.MedianChanges++
	}
	if res.Defined {
		t.data.LastMedian = res.Median
	}

	t.data.PeakNodes = max(t.data.PeakNodes, snap.Nodes)
	t.data.PeakEdges = max(t.data.PeakEdges, snap.Edges)
}

// IncrementSkipped counts a record rejected at ingestion
func (t *Tracker) IncrementSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsSkipped++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.Outcomes = maps.Clone(t.data.Outcomes)
	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress summarizes current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	late := t.data.Outcomes[window.OutcomeLateInserted.String()] +
		t.data.Outcomes[window.OutcomeLateDuplicate.String()] +
		t.data.Outcomes[window.OutcomeLateIgnored.String()]

	return fmt.Sprintf("Events: %d submitted, %d skipped | Late: %d, dropped: %d, resets: %d | Evicted: %d | Median: %.2f",
		t.data.EventsSubmitted,
		t.data.RecordsSkipped,
		late,
		t.data.Outcomes[window.OutcomeOutOfWindow.String()],
		t.data.Outcomes[window.OutcomeGapReset.String()],
		t.data.EdgesEvicted,
		t.data.LastMedian,
	)
}
