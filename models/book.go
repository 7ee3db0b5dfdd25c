// Package models defines data structures shared by the crawler and the store.
package models

import "time"

// Category is a catalog section, keyed by its name.
type Category struct {
	ID        int64     `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// CategoryLink is a category as seen in the site sidebar.
type CategoryLink struct {
	Name string
	URL  string
}

// ParsedItem holds the raw field values captured from one detail page.
// DetailURL is the natural key.
type ParsedItem struct {
	Title           string `json:"title"`
	PriceRaw        string `json:"price"`
	RatingRaw       string `json:"rating"`
	AvailabilityRaw string `json:"availability"`
	CategoryName    string `json:"category"`
	ImageURL        string `json:"image_url"`
	DetailURL       string `json:"detail_url"`
}

// Item is a persisted book. Fields keep the text exactly as observed on the site.
type Item struct {
	ID              int64     `csv:"id" json:"id" bson:"_id"`
	Title           string    `csv:"title" json:"title" bson:"title"`
	PriceRaw        string    `csv:"price" json:"price" bson:"price_raw"`
	RatingRaw       string    `csv:"rating" json:"rating" bson:"rating_raw"`
	AvailabilityRaw string    `csv:"availability" json:"availability" bson:"availability_raw"`
	CategoryName    string    `csv:"category" json:"category" bson:"category_name"`
	ImageURL        string    `csv:"image_url" json:"image_url" bson:"image_url"`
	DetailURL       string    `csv:"detail_url" json:"detail_url" bson:"detail_url"`
	CreatedAt       time.Time `csv:"created_at" json:"created_at" bson:"created_at"`
}

// NewItem builds an unsaved Item from a parsed detail page.
func NewItem(p ParsedItem) Item {
	return Item{
		Title:           p.Title,
		PriceRaw:        p.PriceRaw,
		RatingRaw:       p.RatingRaw,
		AvailabilityRaw: p.AvailabilityRaw,
		CategoryName:    p.CategoryName,
		ImageURL:        p.ImageURL,
		DetailURL:       p.DetailURL,
	}
}
