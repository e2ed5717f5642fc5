package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer emits one median per line with two decimal places
type Writer struct {
	w     *bufio.Writer
	lines int
}

// NewWriter wraps w with buffering; call Flush when done
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteMedian appends a formatted median line
func (w *Writer) WriteMedian(median float64) error {
	if _, err := w.w.WriteString(Format(median)); err != nil {
		return fmt.Errorf("failed to write median: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write median: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns how many medians were written
func (w *Writer) Lines() int {
	return w.lines
}

// Flush writes any buffered output
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Format renders a median as it appears in the output, e.g. "1.50"
func Format(median float64) string {
	return strconv.FormatFloat(median, 'f', 2, 64)
}
