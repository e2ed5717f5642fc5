package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/alvmarrod/median-degree/internal/window"
)

// maxLineSize bounds a single input record
const maxLineSize = 1 << 20

// Reader yields validated events from a line-oriented input, skipping
// records that fail validation
type Reader struct {
	scanner *bufio.Scanner
	layout  string
	line    int
	skipped int
	event   window.Event
	err     error

	// OnSkip, if set, is called for every rejected record
	OnSkip func(line int, err error)
}

// NewReader wraps r; an empty layout selects DefaultTimestampLayout
func NewReader(r io.Reader, layout string) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	if layout == "" {
		layout = DefaultTimestampLayout
	}

	return &Reader{scanner: scanner, layout: layout}
}

// Next advances to the next valid event; false at end of input or on a read error
func (r *Reader) Next() bool {
	for r.scanner.Scan() {
		r.line++

		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		ev, err := Decode(raw, r.layout)
		if err != nil {
			r.skipped++
			if r.OnSkip != nil {
				r.OnSkip(r.line, err)
			}
			continue
		}

		r.event = ev
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("failed to read line %d: %w", r.line+1, err)
	}
	return false
}

// Event returns the event read by the last successful Next
func (r *Reader) Event() window.Event {
	return r.event
}

// Line returns the number of the last line read
func (r *Reader) Line() int {
	return r.line
}

// Skipped returns how many records were rejected so far
func (r *Reader) Skipped() int {
	return r.skipped
}

// Err returns the read error that stopped Next, if any
func (r *Reader) Err() error {
	return r.err
}
