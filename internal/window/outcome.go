package window

import "time"

// Event is one validated transaction between two distinct nodes
type Event struct {
	Actor  string
	Target string
	Time   time.Time
}

// Outcome classifies how an event was applied relative to the latest timestamp
type Outcome int

const (
	// OutcomeInit is the first event of an empty controller
	OutcomeInit Outcome = iota
	// OutcomeGapReset is an event at least one window ahead; all state was discarded
	OutcomeGapReset
	// OutcomeForward is a newer event whose edge was not active
	OutcomeForward
	// OutcomeForwardRefreshed is a newer event that superseded an active edge
	OutcomeForwardRefreshed
	// OutcomeLateInserted is an in-window late event whose edge was not active
	OutcomeLateInserted
	// OutcomeLateDuplicate is a late event for an edge last seen at or before it
	OutcomeLateDuplicate
	// OutcomeLateIgnored is a late event for an edge already seen later
	OutcomeLateIgnored
	// OutcomeOutOfWindow is an event too old to fall in the window; it was dropped
	OutcomeOutOfWindow
)

var outcomeNames = [...]string{
	OutcomeInit:             "init",
	OutcomeGapReset:         "gap_reset",
	OutcomeForward:          "forward",
	OutcomeForwardRefreshed: "forward_refreshed",
	OutcomeLateInserted:     "late_inserted",
	OutcomeLateDuplicate:    "late_duplicate",
	OutcomeLateIgnored:      "late_ignored",
	OutcomeOutOfWindow:      "out_of_window",
}

// Outcomes lists every outcome in declaration order
var Outcomes = []Outcome{
	OutcomeInit,
	OutcomeGapReset,
	OutcomeForward,
	OutcomeForwardRefreshed,
	OutcomeLateInserted,
	OutcomeLateDuplicate,
	OutcomeLateIgnored,
	OutcomeOutOfWindow,
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Result is what Submit reports for one event
type Result struct {
	Outcome Outcome
	Median  float64
	Defined bool // false only before the first event
	Changed bool // degrees changed while applying the event
	Evicted int  // edges that left the window because of this event
}

// Snapshot summarizes controller state
type Snapshot struct {
	Latest  time.Time
	Started bool
	Nodes   int
	Edges   int
	Buckets int
	Median  float64
	Defined bool

	// Histogram[d] is the number of nodes with degree d
	Histogram []int
}
