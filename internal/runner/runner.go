package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/median-degree/internal/config"
	"github.com/alvmarrod/median-degree/internal/ingest"
	"github.com/alvmarrod/median-degree/internal/metrics"
	"github.com/alvmarrod/median-degree/internal/output"
	"github.com/alvmarrod/median-degree/internal/storage"
	"github.com/alvmarrod/median-degree/internal/window"
)

// Source is a named line-oriented input
type Source struct {
	Name   string
	Reader io.Reader
}

// Summary describes a finished run
type Summary struct {
	RunID   string
	Events  int
	Skipped int
}

// Runner drives inputs through a window controller and writes one median per event
type Runner struct {
	cfg        *config.Config
	controller *window.Controller
	tracker    *metrics.Tracker
	exporter   *metrics.Exporter
	store      *storage.Storage

	skippedMu sync.Mutex
	skipped   int
}

// NewRunner wires the collaborators of a run; exporter and store may be nil
func NewRunner(cfg *config.Config, controller *window.Controller, tracker *metrics.Tracker, exporter *metrics.Exporter, store *storage.Storage) *Runner {
	return &Runner{
		cfg:        cfg,
		controller: controller,
		tracker:    tracker,
		exporter:   exporter,
		store:      store,
	}
}

// Run reads the sources one after another, submits events one at a time in
// queue order and writes the medians to out. It stops early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, sources []Source, out io.Writer) (Summary, error) {
	var summary Summary
	r.skippedMu.Lock()
	r.skipped = 0
	r.skippedMu.Unlock()

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}

	if r.store != nil {
		runID, err := r.store.BeginRun(strings.Join(names, ","))
		if err != nil {
			return summary, fmt.Errorf("failed to begin run: %w", err)
		}
		summary.RunID = runID
		logrus.Infof("Recording medians under run %s", runID)
	}

	queue := NewEventQueue(r.cfg.QueueCapacity)
	writer := output.NewWriter(out)

	// One producer reads the sources in the order given so the controller sees
	// a single time-ordered stream
	produceErrs := make([]error, len(sources))
	producersDone := make(chan struct{})
	go func() {
		defer close(producersDone)
		defer queue.Stop()
		for i, src := range sources {
			if ctx.Err() != nil {
				return
			}
			produceErrs[i] = r.produce(ctx, src, queue)
		}
	}()

	// Cancellation must wake a consumer parked on an empty queue
	stopWatch := context.AfterFunc(ctx, queue.Stop)
	defer stopWatch()

	// Single consumer
	var consumeErr error
	for {
		item, ok := queue.Pop()
		if !ok {
			break
		}
		if ctx.Err() != nil {
			queue.Stop()
			break
		}

		summary.Events++
		if err := r.handle(item, summary, writer); err != nil {
			consumeErr = err
			queue.Stop()
			break
		}
	}

	errs := []error{consumeErr}

	// The producer blocked on a read that ignores ctx is abandoned on cancellation
	select {
	case <-producersDone:
		errs = append(errs, produceErrs...)
	case <-ctx.Done():
		logrus.Warn("Run cancelled before all inputs were read")
	}

	summary.Skipped = r.skippedCount()
	logrus.Infof("Processed %d events (%d records skipped)", summary.Events, summary.Skipped)

	if err := writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.FinishRun(summary.RunID, summary.Events); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return summary, errors.Join(errs...)
}

// produce decodes one source into the queue
func (r *Runner) produce(ctx context.Context, src Source, queue *EventQueue) error {
	reader := ingest.NewReader(src.Reader, r.cfg.TimestampLayout)
	reader.OnSkip = func(line int, err error) {
		r.recordSkip()
		logrus.Warnf("Skipping %s:%d: %v", src.Name, line, err)
	}

	for reader.Next() {
		if ctx.Err() != nil {
			return nil
		}
		if !queue.Push(Item{Event: reader.Event(), Source: src.Name, Line: reader.Line()}) {
			return nil
		}
	}

	if err := reader.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", src.Name, err)
	}

	logrus.Debugf("Finished reading %s (%d lines, %d skipped)", src.Name, reader.Line(), reader.Skipped())
	return nil
}

// handle submits one event and fans the result out to output, metrics and storage
func (r *Runner) handle(item Item, summary Summary, writer *output.Writer) error {
	res := r.controller.Submit(item.Event)
	snap := r.controller.Snapshot()

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("%s:%d %s-%s@%s -> %s (median %.2f)", item.Source, item.Line,
			item.Event.Actor, item.Event.Target, item.Event.Time.Format(time.RFC3339), res.Outcome, res.Median)
	}

	r.tracker.RecordResult(res, snap)
	if r.exporter != nil {
		r.exporter.Observe(res, snap)
	}

	if !res.Defined {
		return nil
	}

	if err := writer.WriteMedian(res.Median); err != nil {
		return err
	}

	if r.store != nil {
		row := storage.MedianRow{
			RunID:     summary.RunID,
			Seq:       summary.Events,
			EventTime: item.Event.Time,
			Actor:     item.Event.Actor,
			Target:    item.Event.Target,
			Outcome:   res.Outcome.String(),
			Median:    res.Median,
		}
		if err := r.store.RecordMedian(row); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) recordSkip() {
	r.skippedMu.Lock()
	r.skipped++
	r.skippedMu.Unlock()

	r.tracker.IncrementSkipped()
	if r.exporter != nil {
		r.exporter.RecordSkip()
	}
}

func (r *Runner) skippedCount() int {
	r.skippedMu.Lock()
	defer r.skippedMu.Unlock()
	return r.skipped
}
