// Package normalizer turns provider records into stored articles.
package normalizer

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"newsfeed/internal/models"
)

// CanonicalURL drops everything from the first '?' on. The result is the
// article's identity for dedup and upsert.
func CanonicalURL(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i != -1 {
		return rawURL[:i]
	}
	return rawURL
}

type Normalizer struct {
	source string
	now    func() time.Time
}

func New(source string) *Normalizer {
	return &Normalizer{source: source, now: time.Now}
}

// WithClock replaces the created_at clock.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Format never fails: absent fields become empty strings. The category is
// stored exactly as given.
func (n *Normalizer) Format(raw models.RawArticle, category string) models.Article {
	var publisher models.Publisher
	if raw.Publisher != nil {
		publisher = models.Publisher{
			Href:  strings.TrimSpace(raw.Publisher.Href),
			Title: strings.TrimSpace(raw.Publisher.Title),
		}
	}

	return models.Article{
		Title:         strings.TrimSpace(raw.Title),
		URL:           CanonicalURL(raw.URL),
		PublishedDate: raw.PublishedDate,
		Description:   strings.TrimSpace(raw.Description),
		Image:         raw.Image,
		Publisher:     publisher,
		Source:        n.source,
		Category:      category,
		CreatedAt:     n.now(),
	}
}

// PlainText flattens an HTML fragment to its text, one space between text
// nodes. Script and style bodies are dropped.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
