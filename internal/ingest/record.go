package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alvmarrod/median-degree/internal/window"
)

// DefaultTimestampLayout matches created_time values such as 2016-03-28T23:23:12Z
const DefaultTimestampLayout = "2006-01-02T15:04:05Z"

// Reasons a record is rejected before it reaches the window
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrBadTimestamp    = errors.New("unparseable timestamp")
	ErrMissingEndpoint = errors.New("missing actor or target")
	ErrSelfLoop        = errors.New("actor equals target")
)

// Record is one transaction as it appears in the input, one JSON object per line
type Record struct {
	CreatedTime string `json:"created_time"`
	Actor       string `json:"actor"`
	Target      string `json:"target"`
}

// Decode parses a JSON line into a validated event
func Decode(line []byte, layout string) (window.Event, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return window.Event{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec.Event(layout)
}

// Event validates the record and converts it into a window event
func (r Record) Event(layout string) (window.Event, error) {
	if layout == "" {
		layout = DefaultTimestampLayout
	}

	ts, err := time.Parse(layout, strings.TrimSpace(r.CreatedTime))
	if err != nil {
		return window.Event{}, fmt.Errorf("%w %q: %v", ErrBadTimestamp, r.CreatedTime, err)
	}

	if r.Actor == "" || r.Target == "" {
		return window.Event{}, ErrMissingEndpoint
	}
	if r.Actor == r.Target {
		return window.Event{}, fmt.Errorf("%w: %q", ErrSelfLoop, r.Actor)
	}

	return window.Event{Actor: r.Actor, Target: r.Target, Time: ts}, nil
}
