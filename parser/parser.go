// Package parser holds the pure normalization helpers consumed downstream of
// ingestion. Stored items keep their raw text; these functions interpret it.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-ingest-books/models"
)

var availabilityCountRe = regexp.MustCompile(`\((\d+)\s+available\)`)

// MissingFields names the fields of item that a detail page must provide but
// came back blank, in page order.
func MissingFields(item *models.ParsedItem) []string {
	if item == nil {
		return []string{"item"}
	}
	fields := []struct {
		name  string
		value string
	}{
		{"title", item.Title},
		{"price", item.PriceRaw},
		{"rating", item.RatingRaw},
		{"availability", item.AvailabilityRaw},
		{"category", item.CategoryName},
		{"image", item.ImageURL},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ValidateItem ensures the item fetcher captured every required field.
func ValidateItem(item *models.ParsedItem) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if strings.TrimSpace(item.DetailURL) == "" {
		return fmt.Errorf("item missing detail url")
	}
	if missing := MissingFields(item); len(missing) > 0 {
		return fmt.Errorf("item %s missing %s", item.DetailURL, strings.Join(missing, ", "))
	}
	return nil
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	return strings.TrimFunc(price, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != ','
	})
}

// ParsePrice converts a currency-annotated price such as "£51.77" to a float.
func ParsePrice(price string) (float64, error) {
	clean := strings.ReplaceAll(NormalizePrice(price), ",", "")
	if clean == "" {
		return 0, fmt.Errorf("price %q has no digits", price)
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", price, err)
	}
	return value, nil
}

// NormalizeAvailability collapses internal whitespace in the availability text.
func NormalizeAvailability(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// AvailabilityCount extracts the stock count from text like "In stock (22 available)".
// Text without a count yields 0.
func AvailabilityCount(text string) int {
	match := availabilityCountRe.FindStringSubmatch(NormalizeAvailability(text))
	if match == nil {
		return 0
	}
	count, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return count
}

// RatingToNumeric converts the textual rating to a numeric scale.
// Digit tokens are accepted as well as the site's word tokens.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "Zero", "0":
		return 0
	case "One", "1":
		return 1
	case "Two", "2":
		return 2
	case "Three", "3":
		return 3
	case "Four", "4":
		return 4
	case "Five", "5":
		return 5
	default:
		return 0
	}
}
