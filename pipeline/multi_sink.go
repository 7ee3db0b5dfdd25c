package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-ingest-books/models"
)

// MultiSink fans every batch out to several sinks. A failing sink does not
// stop the batch from reaching the others.
type MultiSink struct {
	mu    sync.Mutex
	sinks []ItemSink
}

// NewMultiSink returns a sink writing to each of sinks in order.
func NewMultiSink(sinks ...ItemSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// openDualFeed opens a CSV and a JSONL feed side by side.
func openDualFeed(csvPath, jsonPath string) (*MultiSink, error) {
	csvWriter, err := NewCSVWriter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv feed: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonPath)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("open json feed: %w", err)
	}
	return NewMultiSink(csvWriter, jsonWriter), nil
}

func (m *MultiSink) Write(items []models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each(func(s ItemSink) error { return s.Write(items) })
}

func (m *MultiSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.each(ItemSink.Close)
}

func (m *MultiSink) Validate() error {
	return m.each(ItemSink.Validate)
}

func (m *MultiSink) each(fn func(ItemSink) error) error {
	var errs []error
	for i, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}
