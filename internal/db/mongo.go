package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"newsfeed/internal/config"
	"newsfeed/internal/models"
)

const defaultTimeout = 10 * time.Second

type MongoDB struct {
	client   *mongo.Client
	articles *mongo.Collection
	timeout  time.Duration
}

func NewMongoDB(cfg config.DBConfig) (*MongoDB, error) {
	timeout := timeoutOf(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	d := newMongoFromCollection(client.Database(cfg.Database).Collection(cfg.Collections.Articles), timeout)
	d.client = client

	if err := d.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't create indexes: %w", err)
	}

	return d, nil
}

func newMongoFromCollection(coll *mongo.Collection, timeout time.Duration) *MongoDB {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MongoDB{articles: coll, timeout: timeout}
}

func timeoutOf(cfg config.DBConfig) time.Duration {
	if t := cfg.Timeout(); t > 0 {
		return t
	}
	return defaultTimeout
}

func (d *MongoDB) createIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}},
		},
	}

	_, err := d.articles.Indexes().CreateMany(ctx, indexes)
	return err
}

// RecentURLs returns the url of every article with created_at >= since.
func (d *MongoDB) RecentURLs(ctx context.Context, since time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	filter := bson.M{"created_at": bson.M{"$gte": since}}
	opts := options.Find().SetProjection(bson.M{"url": 1, "_id": 0})

	cursor, err := d.articles.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent articles: %w", err)
	}
	defer cursor.Close(ctx)

	type urlOnly struct {
		URL string `bson:"url"`
	}

	var urls []string
	for cursor.Next(ctx) {
		var res urlOnly
		if err := cursor.Decode(&res); err != nil {
			return nil, fmt.Errorf("decode recent article: %w", err)
		}
		urls = append(urls, res.URL)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return urls, nil
}

// UpsertMany replaces or inserts every article by url in one unordered
// bulk write.
func (d *MongoDB) UpsertMany(ctx context.Context, articles []models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	writes := make([]mongo.WriteModel, 0, len(articles))
	for _, a := range articles {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"url": a.URL}).
			SetReplacement(a).
			SetUpsert(true))
	}

	if _, err := d.articles.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert of %d articles: %w", len(articles), err)
	}
	return nil
}

func (d *MongoDB) Upsert(ctx context.Context, article models.Article) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.articles.ReplaceOne(ctx, bson.M{"url": article.URL}, article, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", article.URL, err)
	}
	return nil
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Search != "" {
		filter["$text"] = bson.M{"$search": f.Search}
	}
	return filter
}

var newestFirst = bson.D{{Key: "published_date", Value: -1}}

func (d *MongoDB) List(ctx context.Context, f Filter) ([]models.Article, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	filter := mongoFilter(f)

	total, err := d.articles.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	opts := options.Find().SetSort(newestFirst).SetSkip(f.skip())
	if f.PerPage > 0 {
		opts.SetLimit(int64(f.PerPage))
	}

	articles, err := d.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func (d *MongoDB) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Article, error) {
	cursor, err := d.articles.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	defer cursor.Close(ctx)

	articles := []models.Article{}
	if err := cursor.All(ctx, &articles); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return articles, nil
}

func (d *MongoDB) Get(ctx context.Context, url string) (*models.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var article models.Article
	err := d.articles.FindOne(ctx, bson.M{"url": url}).Decode(&article)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return &article, nil
}

// Related returns up to n other articles of the same category, newest first.
func (d *MongoDB) Related(ctx context.Context, article models.Article, n int) ([]models.Article, error) {
	if n <= 0 {
		return []models.Article{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	filter := bson.M{
		"category": article.Category,
		"url":      bson.M{"$ne": article.URL},
	}
	return d.find(ctx, filter, options.Find().SetSort(newestFirst).SetLimit(int64(n)))
}

func (d *MongoDB) Count(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	n, err := d.articles.CountDocuments(ctx, mongoFilter(f))
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

func (d *MongoDB) Close() error {
	if d.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}
