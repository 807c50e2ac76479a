package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"newsfeed/internal/db"
	"newsfeed/internal/logger"
	"newsfeed/internal/models"
	"newsfeed/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// Fetcher triggers one pipeline run.
type Fetcher interface {
	FetchAndStore(ctx context.Context) ([]models.Article, error)
}

type Server struct {
	svc        *QueryService
	fetcher    Fetcher
	categories []string
	pages      *template.Template
	sanitizer  *bluemonday.Policy
	log        *logger.Logger
}

func NewServer(svc *QueryService, fetcher Fetcher, categories []string, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}

	pages, err := template.New("").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		svc:        svc,
		fetcher:    fetcher,
		categories: categories,
		pages:      pages,
		sanitizer:  bluemonday.UGCPolicy(),
		log:        log.With("component", "api"),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cron", s.handleCron)
	mux.HandleFunc("GET /news", s.handleListNews)
	mux.HandleFunc("POST /news", s.handleCreateNews)
	mux.HandleFunc("POST /custom-post", s.handleCustomPost)
	mux.HandleFunc("GET /article", s.handleArticle)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHome)
	return s.recoverer(mux)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
		s.log.Debug("request served", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, statusResponse{Status: "error", Message: err.Error()})
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	// The run outlives a dropped client connection.
	articles, err := s.fetcher.FetchAndStore(context.WithoutCancel(r.Context()))
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.log.Error("cron run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	count := len(articles)
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: "News fetch completed",
		Count:   &count,
	})
}

func (s *Server) handleListNews(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	articles, err := s.svc.Latest(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		s.log.Error("list news failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleCreateNews(w http.ResponseWriter, r *http.Request) {
	var article models.Article
	if err := json.NewDecoder(r.Body).Decode(&article); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.respondCreated(w, r, func(ctx context.Context) (models.Article, error) {
		return s.svc.CreateArticle(ctx, article)
	})
}

func (s *Server) handleCustomPost(w http.ResponseWriter, r *http.Request) {
	var post models.CustomPost
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.respondCreated(w, r, func(ctx context.Context) (models.Article, error) {
		return s.svc.CreateCustomPost(ctx, post)
	})
}

func (s *Server) respondCreated(w http.ResponseWriter, r *http.Request, create func(context.Context) (models.Article, error)) {
	article, err := create(r.Context())
	if errors.Is(err, ErrInvalidArticle) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.log.Error("create article failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

type homePage struct {
	Articles    []models.Article
	CurrentPage int
	TotalPages  int
	Total       int64
	Search      string
	Category    string
	Categories  []string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = n
	}

	search, category := q.Get("search"), q.Get("category")
	articles, total, err := s.svc.ListArticles(r.Context(), category, search, page, 0)
	if err != nil {
		s.log.Error("home page failed", "error", err)
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	perPage := int64(s.svc.PerPage())
	s.render(w, "index.html", homePage{
		Articles:    articles,
		CurrentPage: page,
		TotalPages:  int((total + perPage - 1) / perPage),
		Total:       total,
		Search:      search,
		Category:    category,
		Categories:  s.categories,
	})
}

type articlePage struct {
	Article        models.Article
	Content        template.HTML
	Related        []models.Article
	StructuredData map[string]any
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	article, err := s.svc.GetArticle(r.Context(), url)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Article not found. Please check the URL.", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("article page failed", "url", url, "error", err)
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	related, err := s.svc.Related(r.Context(), *article)
	if err != nil {
		s.log.Warn("related articles unavailable", "url", url, "error", err)
		related = nil
	}

	s.render(w, "article.html", articlePage{
		Article:        *article,
		Content:        template.HTML(s.sanitizer.Sanitize(article.Content)),
		Related:        related,
		StructuredData: structuredData(*article, requestURL(r)),
	})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// structuredData is the schema.org NewsArticle description of a page.
func structuredData(a models.Article, pageURL string) map[string]any {
	return map[string]any{
		"@context":      "https://schema.org",
		"@type":         "NewsArticle",
		"headline":      a.Title,
		"description":   a.Description,
		"datePublished": a.PublishedDate,
		"url":           a.URL,
		"publisher": map[string]any{
			"@type": "Organization",
			"name":  a.Publisher.Title,
			"url":   a.Publisher.Href,
		},
		"mainEntityOfPage": map[string]any{
			"@type": "WebPage",
			"@id":   pageURL,
		},
		"articleSection": a.Category,
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("template failed", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
