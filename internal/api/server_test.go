package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"newsfeed/internal/db"
	"newsfeed/internal/models"
	"newsfeed/internal/pipeline"
)

type fakeFetcher struct {
	articles []models.Article
	err      error
	calls    int
}

func (f *fakeFetcher) FetchAndStore(ctx context.Context) ([]models.Article, error) {
	f.calls++
	return f.articles, f.err
}

type brokenStore struct {
	*db.Memory
}

var errStoreDown = errors.New("store unavailable")

func (brokenStore) List(context.Context, db.Filter) ([]models.Article, int64, error) {
	return nil, 0, errStoreDown
}

func (brokenStore) Get(context.Context, string) (*models.Article, error) {
	return nil, errStoreDown
}

func (brokenStore) Upsert(context.Context, models.Article) error {
	return errStoreDown
}

func newTestServer(t *testing.T, store db.Store, fetcher Fetcher) http.Handler {
	t.Helper()

	if fetcher == nil {
		fetcher = &fakeFetcher{}
	}
	srv, err := NewServer(NewQueryService(store, 12), fetcher, []string{"world", "sports", "country_NG"}, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedStore(t *testing.T, n int, category string) *db.Memory {
	t.Helper()

	store := db.NewMemory()
	for i := 0; i < n; i++ {
		err := store.Upsert(context.Background(), models.Article{
			Title:         fmt.Sprintf("Story %02d", i),
			URL:           fmt.Sprintf("https://news.example/%02d", i),
			PublishedDate: fmt.Sprintf("2026-10-%02d", i+1),
			Description:   "Description",
			Publisher:     models.Publisher{Href: "https://news.example", Title: "Example"},
			Source:        "gnews",
			Category:      category,
			CreatedAt:     time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestCron(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *fakeFetcher
		wantStatus int
		wantBody   statusResponse
	}{
		{
			name:       "success",
			fetcher:    &fakeFetcher{articles: make([]models.Article, 4)},
			wantStatus: http.StatusOK,
			wantBody:   statusResponse{Status: "success", Message: "News fetch completed"},
		},
		{
			name:       "failure",
			fetcher:    &fakeFetcher{err: errors.New("seed dedup window: connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   statusResponse{Status: "error", Message: "seed dedup window: connection refused"},
		},
		{
			name:       "already running",
			fetcher:    &fakeFetcher{err: pipeline.ErrRunInProgress},
			wantStatus: http.StatusConflict,
			wantBody:   statusResponse{Status: "error", Message: pipeline.ErrRunInProgress.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, db.NewMemory(), tt.fetcher), http.MethodGet, "/api/cron", "")

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var got statusResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.wantBody.Status || got.Message != tt.wantBody.Message {
				t.Errorf("body = %+v, want %+v", got, tt.wantBody)
			}
			if tt.wantStatus == http.StatusOK && (got.Count == nil || *got.Count != 4) {
				t.Errorf("count = %v, want 4", got.Count)
			}
			if tt.fetcher.calls != 1 {
				t.Errorf("fetcher called %d times", tt.fetcher.calls)
			}
		})
	}
}

func TestListNews(t *testing.T) {
	store := seedStore(t, 15, "world")
	if err := store.Upsert(context.Background(), models.Article{Title: "Goal", URL: "https://s.example/1", Category: "sports"}); err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, store, nil)

	tests := []struct {
		target     string
		wantStatus int
		wantLen    int
	}{
		{"/news", http.StatusOK, 10},
		{"/news?limit=3", http.StatusOK, 3},
		{"/news?limit=500", http.StatusOK, 16},
		{"/news?category=sports", http.StatusOK, 1},
		{"/news?category=nothing", http.StatusOK, 0},
		{"/news?limit=abc", http.StatusBadRequest, 0},
		{"/news?limit=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got []models.Article
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(got) != tt.wantLen {
				t.Errorf("got %d articles, want %d", len(got), tt.wantLen)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/news", "")
	var got []models.Article
	json.NewDecoder(rec.Body).Decode(&got)
	if got[0].URL != "https://news.example/14" {
		t.Errorf("newest article should come first, got %s", got[0].URL)
	}
}

func TestCreateNews(t *testing.T) {
	store := db.NewMemory()
	h := newTestServer(t, store, nil)

	rec := do(t, h, http.MethodPost, "/news",
		`{"title":" Local election ","url":"https://local.example/e?utm=1","description":"d","publisher":{"href":"https://local.example","title":"Local"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var created models.Article
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.URL != "https://local.example/e" || created.Source != models.SourceCustom || created.Category != DefaultCategory {
		t.Errorf("created = %+v", created)
	}
	if created.Title != "Local election" || created.CreatedAt.IsZero() {
		t.Errorf("created = %+v", created)
	}

	stored, err := store.Get(context.Background(), "https://local.example/e")
	if err != nil {
		t.Fatalf("article not stored: %v", err)
	}
	if stored.Publisher.Title != "Local" {
		t.Errorf("stored = %+v", stored)
	}

	// the same url replaces the stored article
	rec = do(t, h, http.MethodPost, "/news", `{"title":"Updated","url":"https://local.example/e","source":"gnews"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if n, _ := store.Count(context.Background(), db.Filter{}); n != 1 {
		t.Errorf("store holds %d articles, want 1", n)
	}
	if stored, _ := store.Get(context.Background(), "https://local.example/e"); stored.Source != "gnews" || stored.Title != "Updated" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestCreateNews_Invalid(t *testing.T) {
	h := newTestServer(t, db.NewMemory(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"missing title", `{"url":"https://a.example/1"}`},
		{"missing url", `{"title":"t"}`},
		{"url is only a query", `{"title":"t","url":"?x=1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/news", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCustomPost(t *testing.T) {
	store := db.NewMemory()
	h := newTestServer(t, store, nil)

	rec := do(t, h, http.MethodPost, "/custom-post", `{
		"title": "Custom Writeup Title",
		"content": "<h2>Custom Content</h2><p>This is a custom writeup body.</p><script>alert(1)</script>",
		"author": "Jane Doe",
		"category": "Custom",
		"published_date": "2025-07-31"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var created models.Article
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.URL, "/posts/") || len(created.URL) != len("/posts/")+36 {
		t.Errorf("url = %q", created.URL)
	}
	if created.Source != models.SourceCustom || created.Category != "custom" || created.Author != "Jane Doe" {
		t.Errorf("created = %+v", created)
	}
	if created.Description != "Custom Content This is a custom writeup body." {
		t.Errorf("description = %q", created.Description)
	}

	page := do(t, h, http.MethodGet, "/article?url="+url.QueryEscape(created.URL), "")
	if page.Code != http.StatusOK {
		t.Fatalf("details status = %d", page.Code)
	}
	html := page.Body.String()
	for _, want := range []string{"Custom Writeup Title", "Jane Doe", "<h2>Custom Content</h2>"} {
		if !strings.Contains(html, want) {
			t.Errorf("details page is missing %q", want)
		}
	}
	if strings.Contains(html, "alert(1)") {
		t.Error("scripts in post content must be stripped")
	}

	if rec := do(t, h, http.MethodPost, "/custom-post", `{"content":"no title"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing title status = %d, want 400", rec.Code)
	}
}

func TestHome(t *testing.T) {
	h := newTestServer(t, seedStore(t, 14, "world"), nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		contains   []string
		excludes   []string
	}{
		{"first page", "/", http.StatusOK,
			[]string{"Story 13", "Story 02", "Page 1 of 2", `rel="next"`, "country_NG"},
			[]string{"Story 01", `rel="prev"`}},
		{"second page", "/?page=2", http.StatusOK,
			[]string{"Story 01", "Story 00", "Page 2 of 2", `rel="prev"`},
			[]string{"Story 13", `rel="next"`}},
		{"search", "/?search=story+05", http.StatusOK,
			[]string{"Story 05", `1 results for`},
			[]string{"Story 06", "Page 1 of"}},
		{"category", "/?category=sports", http.StatusOK,
			[]string{"No articles found."},
			nil},
		{"bad page", "/?page=0", http.StatusBadRequest, nil, nil},
		{"unknown path", "/nope", http.StatusNotFound, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			for _, s := range tt.contains {
				if !strings.Contains(body, s) {
					t.Errorf("page is missing %q", s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(body, s) {
					t.Errorf("page should not contain %q", s)
				}
			}
		})
	}
}

func TestArticle(t *testing.T) {
	store := seedStore(t, 5, "world")
	h := newTestServer(t, store, nil)

	rec := do(t, h, http.MethodGet, "/article?url="+url.QueryEscape("https://news.example/02"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()

	if !strings.Contains(body, "Story 02") {
		t.Error("page is missing the title")
	}
	if !strings.Contains(body, `"@type":"NewsArticle"`) {
		t.Error("page is missing the JSON-LD block")
	}
	if n := strings.Count(body, `href="/article?url=`); n != RelatedCount {
		t.Errorf("page links %d related articles, want %d", n, RelatedCount)
	}
	if strings.Contains(body, "Story 02</a></li>") {
		t.Error("the article must not be related to itself")
	}

	if rec := do(t, h, http.MethodGet, "/article?url="+url.QueryEscape("https://missing.example"), ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing article status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/article", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("no url status = %d, want 400", rec.Code)
	}
}

func TestStoreErrors(t *testing.T) {
	h := newTestServer(t, brokenStore{db.NewMemory()}, nil)

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/news", ""},
		{http.MethodPost, "/news", `{"title":"t","url":"https://a.example/1"}`},
		{http.MethodGet, "/", ""},
		{http.MethodGet, "/article?url=x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.target, tt.body); rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, db.NewMemory(), nil), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
