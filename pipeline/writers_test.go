package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/models"
)

func testFeedItem() models.Item {
	return models.Item{
		ID:              1,
		Title:           "Test Book",
		PriceRaw:        "£10.00",
		RatingRaw:       "Two",
		AvailabilityRaw: "In stock (3 available)",
		CategoryName:    "Travel",
		ImageURL:        "http://example.test/img.png",
		DetailURL:       "http://example.test/book/1",
		CreatedAt:       time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed", "books.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]models.Item{testFeedItem()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "id" || records[0][1] != "title" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "£10.00" || records[1][5] != "Travel" {
		t.Fatalf("unexpected record: %v", records[1])
	}
	if records[1][8] != "2025-11-04T13:09:13Z" {
		t.Fatalf("created_at=%q", records[1][8])
	}
}

func TestCSVWriterAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")

	for i := 0; i < 2; i++ {
		writer, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("create csv writer: %v", err)
		}
		if err := writer.Write([]models.Item{testFeedItem()}); err != nil {
			t.Fatalf("write csv: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("close csv: %v", err)
		}
	}

	if records := readCSV(t, path); len(records) != 3 {
		t.Fatalf("records=%d, want header plus 2 rows", len(records))
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]models.Item{testFeedItem(), testFeedItem()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Item
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.DetailURL != "http://example.test/book/1" {
			t.Fatalf("detail_url=%q", decoded.DetailURL)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestNewSink(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		format string
		file   string
		check  func(t *testing.T, sink ItemSink)
	}{
		{
			name:   "disabled",
			format: "",
			check: func(t *testing.T, sink ItemSink) {
				if sink != nil {
					t.Fatalf("expected nil sink, got %T", sink)
				}
			},
		},
		{
			name:   "csv",
			format: "csv",
			file:   filepath.Join(dir, "a.csv"),
			check: func(t *testing.T, sink ItemSink) {
				if _, ok := sink.(*CSVWriter); !ok {
					t.Fatalf("sink=%T, want *CSVWriter", sink)
				}
			},
		},
		{
			name:   "json",
			format: "json",
			file:   filepath.Join(dir, "a.jsonl"),
			check: func(t *testing.T, sink ItemSink) {
				if _, ok := sink.(*JSONWriter); !ok {
					t.Fatalf("sink=%T, want *JSONWriter", sink)
				}
			},
		},
		{
			name:   "dual",
			format: "dual",
			file:   filepath.Join(dir, "feed.out"),
			check: func(t *testing.T, sink ItemSink) {
				if _, ok := sink.(*MultiSink); !ok {
					t.Fatalf("sink=%T, want *MultiSink", sink)
				}
				for _, name := range []string{"feed.csv", "feed.jsonl"} {
					if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
						t.Fatalf("expected %s: %v", name, err)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.FeedFormat = tt.format
			cfg.FeedFile = tt.file

			sink, err := NewSink(cfg)
			if err != nil {
				t.Fatalf("new sink: %v", err)
			}
			tt.check(t, sink)
			if sink != nil {
				sink.Close()
			}
		})
	}
}

func TestDualFeedWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")
	jsonPath := filepath.Join(dir, "books.jsonl")

	sink, err := openDualFeed(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("open dual feed: %v", err)
	}
	if err := sink.Write([]models.Item{testFeedItem()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := sink.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

type failingSink struct{ writes int }

func (f *failingSink) Write([]models.Item) error {
	f.writes++
	return errors.New("disk full")
}
func (f *failingSink) Close() error    { return nil }
func (f *failingSink) Validate() error { return nil }

func TestMultiSinkKeepsWritingPastFailure(t *testing.T) {
	bad := &failingSink{}
	rec := &recordingSink{}
	sink := NewMultiSink(bad, rec)

	err := sink.Write([]models.Item{testFeedItem()})
	if err == nil {
		t.Fatal("expected write error")
	}
	if bad.writes != 1 || rec.count() != 1 {
		t.Fatalf("bad writes=%d recorded=%d, want 1 and 1", bad.writes, rec.count())
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}
