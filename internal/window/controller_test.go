package window_test

import (
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/median-degree/internal/memory"
	"github.com/alvmarrod/median-degree/internal/window"
)

var t0 = time.Date(2016, 3, 28, 23, 23, 12, 0, time.UTC)

func ev(actor, target string, sec int) window.Event {
	return window.Event{Actor: actor, Target: target, Time: t0.Add(time.Duration(sec) * time.Second)}
}

func newChecked() *window.Controller {
	return window.NewController(window.WithInvariantChecks(true))
}

func TestEmptyControllerHasNoMedian(t *testing.T) {
	t.Parallel()

	c := newChecked()
	_, defined := c.Median()
	assert.False(t, defined)
	assert.False(t, c.Snapshot().Started)
	assert.Equal(t, window.DefaultWindow, c.Window())
}

func TestTriangleScenario(t *testing.T) {
	t.Parallel()

	c := newChecked()

	res := c.Submit(ev("A", "B", 0))
	assert.Equal(t, window.OutcomeInit, res.Outcome)
	require.True(t, res.Defined)
	assert.InDelta(t, 1.0, res.Median, 1e-9)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, c.Degrees())

	res = c.Submit(ev("B", "C", 1))
	assert.Equal(t, window.OutcomeForward, res.Outcome)
	assert.InDelta(t, 1.0, res.Median, 1e-9)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 1}, c.Degrees())

	res = c.Submit(ev("A", "C", 2))
	assert.Equal(t, window.OutcomeForward, res.Outcome)
	assert.InDelta(t, 2.0, res.Median, 1e-9)
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 2}, c.Degrees())
}

func TestGapResetScenario(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("X", "Y", 0))
	c.Submit(ev("A", "B", 10))
	c.Submit(ev("A", "C", 20))

	res := c.Submit(ev("A", "B", 80))
	assert.Equal(t, window.OutcomeGapReset, res.Outcome)
	assert.Equal(t, 3, res.Evicted)
	assert.InDelta(t, 1.0, res.Median, 1e-9)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, c.Degrees())

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Nodes)
	assert.Equal(t, 1, snap.Edges)
	assert.Equal(t, 1, snap.Buckets)
	assert.Equal(t, t0.Add(80*time.Second), snap.Latest)
	assert.Equal(t, []int{0, 2}, snap.Histogram)
}

func TestGapResetAtExactWindowBoundary(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	c.Submit(ev("C", "D", 5))

	res := c.Submit(ev("A", "B", 65))
	assert.Equal(t, window.OutcomeGapReset, res.Outcome)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, c.Degrees())
	assert.InDelta(t, 1.0, res.Median, 1e-9)
}

func TestLateOlderDuplicateIsIgnored(t *testing.T) {
	t.Parallel()

	c := newChecked()
	first := c.Submit(ev("A", "B", 10))

	res := c.Submit(ev("B", "A", 0))
	assert.Equal(t, window.OutcomeLateIgnored, res.Outcome)
	assert.False(t, res.Changed)
	assert.Equal(t, first.Median, res.Median)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, c.Degrees())
	assert.Equal(t, 1, c.Snapshot().Buckets)
}

func TestForwardEvictionIsCursorDriven(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	c.Submit(ev("C", "D", 5))

	// cutoff is t+64-60 = t+4: A-B@t leaves, C-D@t+5 stays
	res := c.Submit(ev("E", "F", 64))
	assert.Equal(t, window.OutcomeForward, res.Outcome)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, map[string]int{"C": 1, "D": 1, "E": 1, "F": 1}, c.Degrees())
	assert.InDelta(t, 1.0, res.Median, 1e-9)

	// cutoff t+65: the bucket sitting exactly on it is evicted
	res = c.Submit(ev("E", "G", 65))
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, map[string]int{"E": 2, "F": 1, "G": 1}, c.Degrees())
	assert.InDelta(t, 1.0, res.Median, 1e-9)
}

func TestResubmittingSameEventIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	first := c.Submit(ev("B", "C", 3))
	degrees := c.Degrees()

	res := c.Submit(ev("B", "C", 3))
	assert.Equal(t, window.OutcomeLateDuplicate, res.Outcome)
	assert.False(t, res.Changed)
	assert.Equal(t, first.Median, res.Median)
	assert.Equal(t, degrees, c.Degrees())
}

func TestForwardRefreshKeepsDegreesAndExtendsLifetime(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	c.Submit(ev("C", "D", 1))

	res := c.Submit(ev("B", "A", 30))
	assert.Equal(t, window.OutcomeForwardRefreshed, res.Outcome)
	assert.False(t, res.Changed)
	assert.Equal(t, 2, c.Snapshot().Buckets, "A-B@t was superseded by A-B@t+30")

	// cutoff t+10 evicts C-D only; A-B now lives at t+30
	res = c.Submit(ev("E", "F", 70))
	assert.Equal(t, window.OutcomeForward, res.Outcome)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "E": 1, "F": 1}, c.Degrees())
}

func TestLateInsertAddsDegrees(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 30))
	c.Submit(ev("B", "C", 31))

	res := c.Submit(ev("B", "D", 0))
	assert.Equal(t, window.OutcomeLateInserted, res.Outcome)
	assert.True(t, res.Changed)
	assert.Equal(t, map[string]int{"A": 1, "B": 3, "C": 1, "D": 1}, c.Degrees())
	assert.InDelta(t, 1.0, res.Median, 1e-9)
	assert.Equal(t, t0.Add(31*time.Second), c.Snapshot().Latest, "late events do not move the cursor")

	// the late edge is evicted on its own timestamp, not the cursor's
	res = c.Submit(ev("E", "F", 60))
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 1, "E": 1, "F": 1}, c.Degrees())
}

func TestLateDuplicateDoesNotDoubleRelease(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 10))
	c.Submit(ev("C", "D", 40))

	// A-B seen at t+10, a late copy at t+20 extends it
	res := c.Submit(ev("A", "B", 20))
	assert.Equal(t, window.OutcomeLateDuplicate, res.Outcome)

	// cutoff t+15: the t+10 occurrence goes but A-B stays active
	res = c.Submit(ev("C", "E", 75))
	assert.Equal(t, 0, res.Evicted)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 2, "D": 1, "E": 1}, c.Degrees())

	// cutoff t+21: A-B leaves exactly once
	res = c.Submit(ev("C", "F", 81))
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, map[string]int{"C": 3, "D": 1, "E": 1, "F": 1}, c.Degrees())
	require.NoError(t, c.Validate())
}

func TestOutOfWindowEventIsDropped(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 100))
	c.Submit(ev("A", "C", 101))
	before := c.Snapshot()

	res := c.Submit(ev("X", "Y", 41))
	assert.Equal(t, window.OutcomeOutOfWindow, res.Outcome)
	assert.False(t, res.Changed)
	assert.Equal(t, before, c.Snapshot())
	assert.NotContains(t, c.Degrees(), "X")

	// exactly one window behind is outside (latest-window, latest]
	res = c.Submit(ev("X", "Y", 41))
	assert.Equal(t, window.OutcomeOutOfWindow, res.Outcome)

	res = c.Submit(ev("X", "Y", 42))
	assert.Equal(t, window.OutcomeLateInserted, res.Outcome)
}

func TestHalfIntegerMedian(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	c.Submit(ev("A", "C", 1))
	res := c.Submit(ev("D", "E", 2))

	// degrees A:2 B:1 C:1 D:1 E:1 -> median 1
	assert.InDelta(t, 1.0, res.Median, 1e-9)

	res = c.Submit(ev("A", "D", 3))
	// A:3 B:1 C:1 D:2 E:1 -> sorted 1 1 1 2 3
	assert.InDelta(t, 1.0, res.Median, 1e-9)

	res = c.Submit(ev("B", "F", 4))
	// A:3 B:2 C:1 D:2 E:1 F:1 -> sorted 1 1 1 2 2 3
	assert.InDelta(t, 1.5, res.Median, 1e-9)
}

func TestCustomWindow(t *testing.T) {
	t.Parallel()

	c := window.NewController(window.WithWindow(10*time.Second), window.WithInvariantChecks(true))
	c.Submit(ev("A", "B", 0))

	assert.Equal(t, window.OutcomeGapReset, c.Submit(ev("C", "D", 10)).Outcome)
	assert.Equal(t, window.OutcomeOutOfWindow, c.Submit(ev("A", "B", 0)).Outcome)
	assert.Equal(t, window.OutcomeLateInserted, c.Submit(ev("A", "B", 1)).Outcome)
}

func TestReset(t *testing.T) {
	t.Parallel()

	c := newChecked()
	c.Submit(ev("A", "B", 0))
	c.Reset()

	_, defined := c.Median()
	assert.False(t, defined)
	assert.Empty(t, c.Degrees())
	assert.Equal(t, window.OutcomeInit, c.Submit(ev("C", "D", -500)).Outcome)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gap_reset", window.OutcomeGapReset.String())
	assert.Equal(t, "late_ignored", window.OutcomeLateIgnored.String())
	assert.Equal(t, "unknown", window.Outcome(99).String())
	assert.Len(t, window.Outcomes, 8)
}

func TestConcurrentSubmitIsSerialized(t *testing.T) {
	t.Parallel()

	c := newChecked()
	nodes := []string{"a", "b", "c", "d", "e", "f"}

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				x := nodes[(w+i)%len(nodes)]
				y := nodes[(w+i+1+i%3)%len(nodes)]
				if x == y {
					continue
				}
				c.Submit(ev(x, y, i/4))
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, c.Validate())
}

// bruteForceMedian rebuilds the in-window edge set from every submitted event
// and returns the median degree computed by sorting
func bruteForceMedian(history []window.Event, w time.Duration) float64 {
	latest := history[0].Time
	for _, e := range history {
		if e.Time.After(latest) {
			latest = e.Time
		}
	}
	cutoff := latest.Add(-w)

	active := make(map[memory.Edge]bool)
	for _, e := range history {
		if e.Time.After(cutoff) {
			active[memory.NewEdge(e.Actor, e.Target)] = true
		}
	}

	degrees := make(map[string]int)
	for e := range active {
		degrees[e.A]++
		degrees[e.B]++
	}

	values := make([]int, 0, len(degrees))
	for _, d := range degrees {
		values = append(values, d)
	}
	slices.Sort(values)

	n := len(values)
	if n%2 == 1 {
		return float64(values[n/2])
	}
	return float64(values[n/2-1]+values[n/2]) / 2
}

func TestMedianMatchesBruteForce(t *testing.T) {
	t.Parallel()

	nodes := []string{"ann", "bob", "cat", "dan", "eve", "fay", "gus", "hal", "ivy"}

	for _, seed := range []uint64{1, 7, 42, 1234} {
		rng := rand.New(rand.NewPCG(seed, seed*31+1))
		c := newChecked()

		var history []window.Event
		clock := 0
		for step := range 1500 {
			switch r := rng.IntN(100); {
			case r < 60:
				clock += rng.IntN(4)
			case r < 62:
				clock += 55 + rng.IntN(15)
			}

			offset := 0
			if rng.IntN(100) < 30 {
				offset = -rng.IntN(75)
			}

			x := nodes[rng.IntN(len(nodes))]
			y := nodes[rng.IntN(len(nodes))]
			for y == x {
				y = nodes[rng.IntN(len(nodes))]
			}

			e := ev(x, y, clock+offset)
			history = append(history, e)

			res := c.Submit(e)
			require.True(t, res.Defined)
			require.InDelta(t, bruteForceMedian(history, window.DefaultWindow), res.Median, 1e-9,
				"seed %d step %d event %s-%s@%d (%s)", seed, step, x, y, clock+offset, res.Outcome)
		}
	}
}
