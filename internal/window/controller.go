package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/alvmarrod/median-degree/internal/memory"
	"github.com/sirupsen/logrus"
)

// DefaultWindow is the trailing window length
const DefaultWindow = 60 * time.Second

// Controller maintains the median degree of the graph formed by the edges
// seen within the trailing window of the latest accepted timestamp.
//
// The live window is (latest-window, latest]. Submit is serialized by an
// internal mutex, so several producers may share one controller; each call
// completes eviction, duplicate resolution, degree updates and the median
// refresh before the next one starts.
type Controller struct {
	mu              sync.Mutex
	window          time.Duration
	checkInvariants bool

	log     *memory.EdgeTimeLog
	degrees *memory.DegreeGraph
	median  memory.MedianTracker

	latest  time.Time
	started bool
}

// Option configures a Controller
type Option func(*Controller)

// WithWindow sets the window length; non-positive values are ignored
func WithWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithInvariantChecks validates degree bookkeeping after every event and
// panics on a violation
func WithInvariantChecks(enabled bool) Option {
	return func(c *Controller) {
		c.checkInvariants = enabled
	}
}

// NewController creates an empty controller
func NewController(opts ...Option) *Controller {
	c := &Controller{
		window:  DefaultWindow,
		log:     memory.NewEdgeTimeLog(),
		degrees: memory.NewDegreeGraph(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the configured window length
func (c *Controller) Window() time.Duration {
	return c.window
}

// Submit applies one event and returns the resulting median
func (c *Controller) Submit(ev Event) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res Result
	if !c.started {
		res = c.seed(ev, OutcomeInit)
	} else {
		delta := ev.Time.Sub(c.latest)
		switch {
		case delta >= c.window:
			res = c.seed(ev, OutcomeGapReset)
		case delta > 0:
			res = c.forward(ev)
		case delta > -c.window:
			res = c.late(ev)
		default:
			res = Result{Outcome: OutcomeOutOfWindow}
		}
	}

	if c.checkInvariants {
		if err := c.validate(); err != nil {
			panic(fmt.Sprintf("window: invariant violated after %s event %s-%s@%s: %v",
				res.Outcome, ev.Actor, ev.Target, ev.Time.Format(time.RFC3339), err))
		}
	}

	res.Median, res.Defined = c.median.Value()
	return res
}

// seed discards all state and starts over from a single edge
func (c *Controller) seed(ev Event, outcome Outcome) Result {
	evicted := c.log.Edges()
	if outcome == OutcomeGapReset {
		logrus.Debugf("Gap of %v since %s, resetting window (%d edges dropped)",
			ev.Time.Sub(c.latest), c.latest.Format(time.RFC3339), evicted)
	}

	edge := memory.NewEdge(ev.Actor, ev.Target)
	c.log.Reset()
	c.log.Insert(edge, ev.Time)
	c.degrees.Seed(edge)
	c.median.Set(1)

	c.latest = ev.Time
	c.started = true

	return Result{Outcome: outcome, Changed: true, Evicted: evicted}
}

// forward handles an event newer than the latest timestamp but inside one window of it
func (c *Controller) forward(ev Event) Result {
	c.latest = ev.Time
	edge := memory.NewEdge(ev.Actor, ev.Target)

	released := c.log.EvictUpTo(c.latest.Add(-c.window))
	for _, e := range released {
		c.degrees.ApplyEdge(e, memory.Down)
	}
	changed := len(released) > 0

	// An edge still active here is already counted; only its older occurrences go
	outcome := OutcomeForward
	wasActive := c.log.Contains(edge)
	c.log.Insert(edge, ev.Time)
	if wasActive {
		c.log.RemoveBefore(edge, ev.Time)
		outcome = OutcomeForwardRefreshed
	} else {
		c.degrees.ApplyEdge(edge, memory.Up)
		changed = true
	}

	if changed {
		c.median.Recompute(c.degrees.NodeCount(), c.degrees.Bins())
	}

	return Result{Outcome: outcome, Changed: changed, Evicted: len(released)}
}

// late handles an event at or behind the latest timestamp but inside the window
func (c *Controller) late(ev Event) Result {
	edge := memory.NewEdge(ev.Actor, ev.Target)

	seen, found := c.log.Find(edge)
	switch {
	case !found:
		c.log.Insert(edge, ev.Time)
		c.degrees.ApplyEdge(edge, memory.Up)
		c.median.Recompute(c.degrees.NodeCount(), c.degrees.Bins())
		return Result{Outcome: OutcomeLateInserted, Changed: true}
	case seen.After(ev.Time):
		return Result{Outcome: OutcomeLateIgnored}
	default:
		c.log.Insert(edge, ev.Time)
		return Result{Outcome: OutcomeLateDuplicate}
	}
}

// Median returns the current median
func (c *Controller) Median() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.median.Value()
}

// Snapshot returns a summary of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	median, defined := c.median.Value()
	return Snapshot{
		Latest:  c.latest,
		Started: c.started,
		Nodes:   c.degrees.NodeCount(),
		Edges:   c.log.Edges(),
		Buckets: c.log.Buckets(),
		Median:  median,
		Defined: defined,

		Histogram: c.degrees.Histogram(),
	}
}

// Degrees returns a copy of the per-node degrees
func (c *Controller) Degrees() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degrees.Degrees()
}

// Histogram returns a copy of the degree histogram
func (c *Controller) Histogram() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degrees.Histogram()
}

// ActiveEdges returns the edges currently inside the window
func (c *Controller) ActiveEdges() []memory.Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.ActiveEdges()
}

// Reset discards all state; the next event is handled as the first one
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Reset()
	c.degrees.Reset()
	c.median.Reset()
	c.latest = time.Time{}
	c.started = false
}

// Validate checks the degree bookkeeping against the edge log
func (c *Controller) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validate()
}

func (c *Controller) validate() error {
	if err := c.degrees.Validate(); err != nil {
		return err
	}

	_, degreeSum := c.degrees.GetStats()
	if degreeSum != 2*c.log.Edges() {
		return fmt.Errorf("degree sum %d does not match %d active edges", degreeSum, c.log.Edges())
	}
	return nil
}
