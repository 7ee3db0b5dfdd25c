package parser

import (
	"math"
	"strings"
	"testing"

	"github.com/aluiziolira/go-ingest-books/models"
)

func TestValidateItem(t *testing.T) {
	tests := []struct {
		name    string
		item    *models.ParsedItem
		wantErr bool
	}{
		{
			name: "valid item",
			item:    completeItem(),
			wantErr: false,
		},
		{
			name: "missing price",
			item: func() *models.ParsedItem {
				item := completeItem()
				item.PriceRaw = ""
				return item
			}(),
			wantErr: true,
		},
		{
			name: "missing image",
			item: func() *models.ParsedItem {
				item := completeItem()
				item.ImageURL = " "
				return item
			}(),
			wantErr: true,
		},
		{
			name:    "nil item",
			item:    nil,
			wantErr: true,
		},
		{
			name: "missing title",
			item: &models.ParsedItem{
				Title:     "  ",
				DetailURL: "http://example.com/book/1",
			},
			wantErr: true,
		},
		{
			name: "missing detail url",
			item: &models.ParsedItem{
				Title: "Test Book",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItem(tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateItem() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func completeItem() *models.ParsedItem {
	return &models.ParsedItem{
		Title:           "Test Book",
		PriceRaw:        "£10.00",
		RatingRaw:       "Five",
		AvailabilityRaw: "In stock (3 available)",
		CategoryName:    "Poetry",
		ImageURL:        "http://example.com/media/1.jpg",
		DetailURL:       "http://example.com/book/1",
	}
}

func TestMissingFields(t *testing.T) {
	if got := MissingFields(completeItem()); len(got) != 0 {
		t.Fatalf("complete item reported missing %v", got)
	}

	bare := &models.ParsedItem{Title: "Bare", DetailURL: "http://example.com/book/2"}
	got := strings.Join(MissingFields(bare), ",")
	if got != "price,rating,availability,category,image" {
		t.Fatalf("missing = %q", got)
	}

	if got := MissingFields(nil); len(got) != 1 || got[0] != "item" {
		t.Fatalf("nil item missing = %v", got)
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with currency symbol", input: "£51.77", expected: "51.77"},
		{name: "mis-decoded symbol", input: "Â£51.77", expected: "51.77"},
		{name: "with whitespace", input: "  £10.50  ", expected: "10.50"},
		{name: "already clean", input: "25.99", expected: "25.99"},
		{name: "multiple symbols", input: "£ 99.99 £", expected: "99.99"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePrice(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "£51.77", want: 51.77},
		{input: "£1,024.50", want: 1024.50},
		{input: "free", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "Zero", expected: 0},
		{input: "One", expected: 1},
		{input: "Two", expected: 2},
		{input: "Three", expected: 3},
		{input: "Four", expected: 4},
		{input: "Five", expected: 5},
		{input: "4", expected: 4},
		{input: "Invalid", expected: 0},
		{input: "", expected: 0},
		{input: "three", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RatingToNumeric(tt.input)
			if result != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with whitespace", input: "  In stock (22 available)  ", expected: "In stock (22 available)"},
		{name: "internal newlines", input: "\n    In stock\n    (3 available)\n", expected: "In stock (3 available)"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeAvailability(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeAvailability(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAvailabilityCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "In stock (22 available)", expected: 22},
		{input: "\n  In stock\n  (1 available)", expected: 1},
		{input: "In stock", expected: 0},
		{input: "Out of stock", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := AvailabilityCount(tt.input); got != tt.expected {
				t.Errorf("AvailabilityCount(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}
