package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"newsfeed/internal/config"
	"newsfeed/internal/models"
)

const defaultTable = "articles"

// Postgres keeps articles in a single table keyed by url.
type Postgres struct {
	conn    *sql.DB
	table   string
	timeout time.Duration
}

func NewPostgres(cfg config.DBConfig) (*Postgres, error) {
	conn, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	p := newPostgresFromConn(conn, cfg.Collections.Articles, timeoutOf(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := p.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return p, nil
}

func newPostgresFromConn(conn *sql.DB, table string, timeout time.Duration) *Postgres {
	if table == "" {
		table = defaultTable
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Postgres{conn: conn, table: pq.QuoteIdentifier(table), timeout: timeout}
}

func (p *Postgres) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			url             TEXT PRIMARY KEY,
			title           TEXT NOT NULL DEFAULT '',
			published_date  TEXT NOT NULL DEFAULT '',
			description     TEXT NOT NULL DEFAULT '',
			image           TEXT NOT NULL DEFAULT '',
			publisher_href  TEXT NOT NULL DEFAULT '',
			publisher_title TEXT NOT NULL DEFAULT '',
			source          TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL DEFAULT '',
			author          TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + p.indexName("created_at") + ` ON ` + p.table + ` (created_at)`,
		`CREATE INDEX IF NOT EXISTS ` + p.indexName("category") + ` ON ` + p.table + ` (category)`,
	}

	for _, stmt := range statements {
		if _, err := p.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (p *Postgres) indexName(column string) string {
	return pq.QuoteIdentifier(strings.Trim(p.table, `"`) + "_" + column + "_idx")
}

const articleColumns = `url, title, published_date, description, image, publisher_href,
	publisher_title, source, category, content, author, created_at`

func (p *Postgres) upsertQuery() string {
	return `INSERT INTO ` + p.table + ` (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			published_date = EXCLUDED.published_date,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			publisher_href = EXCLUDED.publisher_href,
			publisher_title = EXCLUDED.publisher_title,
			source = EXCLUDED.source,
			category = EXCLUDED.category,
			content = EXCLUDED.content,
			author = EXCLUDED.author,
			created_at = EXCLUDED.created_at`
}

func articleArgs(a models.Article) []any {
	return []any{
		a.URL, a.Title, a.PublishedDate, a.Description, a.Image, a.Publisher.Href,
		a.Publisher.Title, a.Source, a.Category, a.Content, a.Author, a.CreatedAt,
	}
}

func (p *Postgres) RecentURLs(ctx context.Context, since time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.conn.QueryContext(ctx, `SELECT url FROM `+p.table+` WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (p *Postgres) UpsertMany(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, p.upsertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range articles {
		if _, err := stmt.ExecContext(ctx, articleArgs(a)...); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", a.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, article models.Article) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.conn.ExecContext(ctx, p.upsertQuery(), articleArgs(article)...); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", article.URL, err)
	}
	return nil
}

// likePattern escapes LIKE metacharacters so search terms match literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, likePattern(f.Search))
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]models.Article, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	total, err := p.count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	where, args := whereClause(f)
	query := `SELECT ` + articleColumns + ` FROM ` + p.table + where + ` ORDER BY published_date DESC`
	if f.PerPage > 0 {
		args = append(args, f.PerPage, f.skip())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	articles, err := p.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (p *Postgres) query(ctx context.Context, query string, args ...any) ([]models.Article, error) {
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	articles := []models.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (models.Article, error) {
	var a models.Article
	err := s.Scan(
		&a.URL, &a.Title, &a.PublishedDate, &a.Description, &a.Image, &a.Publisher.Href,
		&a.Publisher.Title, &a.Source, &a.Category, &a.Content, &a.Author, &a.CreatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan article: %w", err)
	}
	return a, nil
}

func (p *Postgres) Get(ctx context.Context, url string) (*models.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	row := p.conn.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM `+p.table+` WHERE url = $1`, url)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) Related(ctx context.Context, article models.Article, n int) ([]models.Article, error) {
	if n <= 0 {
		return []models.Article{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.query(ctx,
		`SELECT `+articleColumns+` FROM `+p.table+`
		WHERE category = $1 AND url <> $2
		ORDER BY published_date DESC LIMIT $3`,
		article.Category, article.URL, n)
}

func (p *Postgres) Count(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.count(ctx, f)
}

func (p *Postgres) count(ctx context.Context, f Filter) (int64, error) {
	where, args := whereClause(f)

	var n int64
	if err := p.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+p.table+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	return p.conn.Close()
}
