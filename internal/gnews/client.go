// Package gnews fetches headlines and search results from the Google News
// RSS endpoints.
package gnews

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gocolly/colly"
	"github.com/mmcdole/gofeed/rss"
	"github.com/temoto/robotstxt"

	"newsfeed/internal/config"
	"newsfeed/internal/logger"
	"newsfeed/internal/models"
	"newsfeed/internal/normalizer"
	"newsfeed/internal/retry"
)

const Name = "gnews"

var (
	ErrDisallowed = errors.New("path disallowed by robots.txt")
	ErrEmptyQuery = errors.New("empty search query")
)

type Client struct {
	cfg       config.ProviderConfig
	collector *colly.Collector
	log       *logger.Logger

	robotsOnce  sync.Once
	robotsGroup *robotstxt.Group
}

func New(cfg config.ProviderConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	if timeout := cfg.Timeout(); timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	return &Client{
		cfg:       cfg,
		collector: c,
		log:       log.With("provider", nameOf(cfg)),
	}
}

func nameOf(cfg config.ProviderConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return Name
}

// Name is the source tag stored on every article, provider.name when set.
func (c *Client) Name() string {
	return nameOf(c.cfg)
}

// ByTopic returns the top headlines of a Google News topic section.
func (c *Client) ByTopic(ctx context.Context, topic string) ([]models.RawArticle, error) {
	return c.fetch(ctx, "/headlines/section/topic/"+url.PathEscape(strings.ToUpper(topic)), nil, c.cfg.Country)
}

// ByLocation returns headlines about place, localized for country.
func (c *Client) ByLocation(ctx context.Context, place, country string) ([]models.RawArticle, error) {
	if country == "" {
		country = c.cfg.Country
	}
	return c.fetch(ctx, "/headlines/section/geo/"+url.PathEscape(place), nil, country)
}

// Search runs a free-text query limited to the configured period.
func (c *Client) Search(ctx context.Context, query string) ([]models.RawArticle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if c.cfg.Period != "" {
		query += " when:" + c.cfg.Period
	}
	return c.fetch(ctx, "/search", url.Values{"q": {query}}, c.cfg.Country)
}

func (c *Client) endpoint(path string, params url.Values, country string) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("hl", c.cfg.Language)
	params.Set("gl", country)
	params.Set("ceid", country+":"+c.cfg.Language)

	return strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values, country string) ([]models.RawArticle, error) {
	target := c.endpoint(path, params, country)

	if c.cfg.RespectRobots && !c.allowed(ctx, target) {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrDisallowed, target))
	}

	body, err := c.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	feed, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", target, err)
	}

	items := feed.Items
	if c.cfg.MaxResults > 0 && len(items) > c.cfg.MaxResults {
		items = items[:c.cfg.MaxResults]
	}

	out := make([]models.RawArticle, 0, len(items))
	for _, item := range items {
		out = append(out, toRaw(item))
	}

	c.log.Debug("feed fetched", "url", target, "items", len(out))
	return out, nil
}

// get performs one synchronous request on a fresh clone of the base
// collector, so callbacks never leak between concurrent calls.
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var body []byte
	collector := c.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	// colly v1 requests take no context; an in-flight request is bounded by
	// provider.timeout_sec only.

	if err := collector.Visit(target); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) allowed(ctx context.Context, target string) bool {
	c.robotsOnce.Do(func() {
		u, err := url.Parse(c.cfg.BaseURL)
		if err != nil {
			c.log.Warn("can't parse base url for robots.txt", "error", err)
			return
		}

		robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

		var (
			status int
			body   []byte
		)
		collector := c.collector.Clone()
		collector.ParseHTTPErrorResponse = true
		collector.OnResponse(func(r *colly.Response) {
			status = r.StatusCode
			body = r.Body
		})
		if err := ctx.Err(); err != nil {
			return
		}
		if err := collector.Visit(robotsURL); err != nil {
			c.log.Warn("robots.txt not loaded, ignoring", "url", robotsURL, "error", err)
			return
		}

		data, err := robotstxt.FromStatusAndBytes(status, body)
		if err != nil {
			c.log.Warn("robots.txt not parsed, ignoring", "url", robotsURL, "error", err)
			return
		}
		c.robotsGroup = data.FindGroup(c.cfg.UserAgent)
	})

	if c.robotsGroup == nil {
		return true
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return c.robotsGroup.Test(u.Path)
}

func toRaw(item *rss.Item) models.RawArticle {
	raw := models.RawArticle{
		Title:         item.Title,
		URL:           item.Link,
		Description:   normalizer.PlainText(item.Description),
		Image:         imageOf(item),
		PublishedDate: item.PubDate,
	}
	if item.Source != nil {
		raw.Publisher = &models.RawPublisher{
			Href:  item.Source.URL,
			Title: item.Source.Title,
		}
	}
	return raw
}

func imageOf(item *rss.Item) string {
	if item.Enclosure != nil && strings.HasPrefix(item.Enclosure.Type, "image/") {
		return item.Enclosure.URL
	}

	media := item.Extensions["media"]
	for _, name := range []string{"content", "thumbnail"} {
		for _, e := range media[name] {
			if u := e.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}
