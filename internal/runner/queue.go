package runner

import (
	"sync"

	"github.com/alvmarrod/median-degree/internal/window"
)

// Item is an event tagged with where it came from
type Item struct {
	Event  window.Event
	Source string
	Line   int
}

// EventQueue is a bounded FIFO feeding a single consumer from any number of
// producers. It is the one serialization point in front of the controller.
type EventQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Item
	capacity int
	stopped  bool
}

// NewEventQueue creates a queue holding at most capacity items
func NewEventQueue(capacity int) *EventQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &EventQueue{
		items:    make([]Item, 0, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends an item, blocking while the queue is full.
// Returns false if the queue was stopped.
func (q *EventQueue) Push(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.stopped {
		q.notFull.Wait()
	}

	// Don't accept new entries if stopped
	if q.stopped {
		return false
	}

	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return true
}

// Pop removes and returns the first item.
// Blocks if queue is empty and not stopped.
// Returns (item, true) if successful, (empty, false) if stopped and empty.
func (q *EventQueue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			q.notFull.Signal()
			return item, true
		}

		// Queue is empty - check if stopped
		if q.stopped {
			return Item{}, false
		}

		q.notEmpty.Wait()
	}
}

// Size returns the current number of items in the queue
func (q *EventQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop signals the queue to stop accepting new items.
// The consumer drains remaining items, then Pop returns false; blocked
// producers are released with false.
func (q *EventQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
