// Package sources lists what the pipeline asks the provider for.
package sources

import (
	"context"
	"fmt"
	"strings"

	"newsfeed/internal/models"
)

type Kind string

const (
	KindTopic   Kind = "topic"
	KindCountry Kind = "country"
	KindSearch  Kind = "search"
)

var DefaultTopics = []string{
	"WORLD", "NATION", "BUSINESS", "TECHNOLOGY", "ENTERTAINMENT", "SPORTS",
	"SCIENCE", "HEALTH", "POLITICS", "CELEBRITIES", "ECONOMY", "FINANCE",
	"EDUCATION", "FOOD", "TRAVEL",
}

type Country struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

var DefaultCountries = []Country{
	{Name: "Nigeria", Code: "NG"},
	{Name: "United_States", Code: "US"},
	{Name: "Canada", Code: "CA"},
	{Name: "Russia", Code: "RU"},
	{Name: "Israel", Code: "IL"},
	{Name: "Germany", Code: "DE"},
}

// Provider is the news-search upstream. The target country is an argument,
// so concurrent calls never share per-call state.
type Provider interface {
	Name() string
	ByTopic(ctx context.Context, topic string) ([]models.RawArticle, error)
	ByLocation(ctx context.Context, place, country string) ([]models.RawArticle, error)
}

// Searcher is implemented by providers that accept free-text queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.RawArticle, error)
}

// Descriptor is one provider query. For countries Value holds the code and
// Place the country name as configured.
type Descriptor struct {
	Kind  Kind
	Value string
	Place string
}

func Topic(topic string) Descriptor {
	return Descriptor{Kind: KindTopic, Value: topic}
}

func ForCountry(c Country) Descriptor {
	return Descriptor{Kind: KindCountry, Value: c.Code, Place: c.Name}
}

func Search(query string) Descriptor {
	return Descriptor{Kind: KindSearch, Value: strings.TrimSpace(query)}
}

func (d Descriptor) Category() string {
	switch d.Kind {
	case KindCountry:
		return CountryCategory(d.Value)
	case KindSearch:
		return SearchCategory(d.Value)
	default:
		return strings.ToLower(d.Value)
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.Value)
}

// Query runs the descriptor against p.
func (d Descriptor) Query(ctx context.Context, p Provider) ([]models.RawArticle, error) {
	switch d.Kind {
	case KindTopic:
		return p.ByTopic(ctx, d.Value)
	case KindCountry:
		return p.ByLocation(ctx, PlaceName(d.Place), d.Value)
	case KindSearch:
		s, ok := p.(Searcher)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support search", p.Name())
		}
		return s.Search(ctx, d.Value)
	default:
		return nil, fmt.Errorf("unknown source kind %q", d.Kind)
	}
}

// PlaceName turns "United_States" into "United States".
func PlaceName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func CountryCategory(code string) string {
	return "country_" + code
}

// SearchCategory turns "Climate Summit" into "search_climate_summit".
func SearchCategory(query string) string {
	return "search_" + strings.Join(strings.Fields(strings.ToLower(query)), "_")
}

// Searches returns one descriptor per non-blank query, after the
// countries and topics of Enumerate.
func Searches(queries []string) []Descriptor {
	var out []Descriptor
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		out = append(out, Search(q))
	}
	return out
}

// Enumerate returns all countries first, then all topics.
func Enumerate(topics []string, countries []Country) []Descriptor {
	out := make([]Descriptor, 0, len(topics)+len(countries))
	for _, c := range countries {
		out = append(out, ForCountry(c))
	}
	for _, t := range topics {
		out = append(out, Topic(t))
	}
	return out
}

// Categories lists the category tag of every descriptor, topics first.
func Categories(topics []string, countries []Country) []string {
	out := make([]string, 0, len(topics)+len(countries))
	for _, t := range topics {
		out = append(out, strings.ToLower(t))
	}
	for _, c := range countries {
		out = append(out, CountryCategory(c.Code))
	}
	return out
}
