package models

import "time"

const (
	SourceCustom = "custom"
)

type Publisher struct {
	Href  string `bson:"href" json:"href"`
	Title string `bson:"title" json:"title"`
}

// Article is the stored shape. URL is the natural key.
type Article struct {
	Title         string    `bson:"title" json:"title"`
	URL           string    `bson:"url" json:"url"`
	PublishedDate string    `bson:"published_date" json:"published_date"`
	Description   string    `bson:"description" json:"description"`
	Image         string    `bson:"image" json:"image"`
	Publisher     Publisher `bson:"publisher" json:"publisher"`
	Source        string    `bson:"source" json:"source"`
	Category      string    `bson:"category" json:"category"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`

	Content string `bson:"content,omitempty" json:"content,omitempty"`
	Author  string `bson:"author,omitempty" json:"author,omitempty"`
}

type RawPublisher struct {
	Href  string
	Title string
}

// RawArticle is a record as returned by the provider. Any field may be empty
// and Publisher may be nil.
type RawArticle struct {
	Title         string
	URL           string
	Description   string
	Image         string
	PublishedDate string
	Publisher     *RawPublisher
}

type CustomPost struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Author        string `json:"author"`
	Category      string `json:"category"`
	PublishedDate string `json:"published_date"`
	Image         string `json:"image"`
}
