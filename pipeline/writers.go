package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/models"
)

// ItemSink receives items the moment they are first stored.
type ItemSink interface {
	Write(items []models.Item) error
	Close() error
	Validate() error
}

var csvHeader = []string{"id", "title", "price", "rating", "availability", "category", "image_url", "detail_url", "created_at"}

// CSVWriter appends items to a CSV feed.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter opens filename for appending and writes the header row when
// the file is new.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := openFeedFile(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends items to the CSV output.
func (cw *CSVWriter) Write(items []models.Item) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, item := range items {
		record := []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			item.PriceRaw,
			item.RatingRaw,
			item.AvailabilityRaw,
			item.CategoryName,
			item.ImageURL,
			item.DetailURL,
			item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := openFeedFile(filename)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends items in JSONL format.
func (jw *JSONWriter) Write(items []models.Item) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, item := range items {
		if err := jw.encoder.Encode(item); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewSink builds the feed selected by cfg.FeedFormat. It returns nil when no
// feed is configured. The dual format writes <base>.csv and <base>.jsonl.
func NewSink(cfg *config.Config) (ItemSink, error) {
	switch cfg.FeedFormat {
	case "":
		return nil, nil
	case "csv":
		return NewCSVWriter(cfg.FeedFile)
	case "json":
		return NewJSONWriter(cfg.FeedFile)
	case "dual":
		base := strings.TrimSuffix(cfg.FeedFile, filepath.Ext(cfg.FeedFile))
		return openDualFeed(base+".csv", base+".jsonl")
	default:
		return nil, fmt.Errorf("unknown feed format %q", cfg.FeedFormat)
	}
}

func openFeedFile(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
