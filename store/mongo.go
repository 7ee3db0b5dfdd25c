package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/aluiziolira/go-ingest-books/models"
)

const defaultMongoDatabase = "books"

// Mongo stores records in MongoDB. Unique indexes on the natural keys decide
// insert races; integer IDs come from a counters collection.
type Mongo struct {
	client     *mongo.Client
	categories *mongo.Collection
	items      *mongo.Collection
	counters   *mongo.Collection
}

// OpenMongo connects to uri and ensures the unique indexes exist. The
// database comes from the URI path, defaulting to "books".
func OpenMongo(ctx context.Context, uri string) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	m := &Mongo{
		client:     client,
		categories: db.Collection("categories"),
		items:      db.Collection("items"),
		counters:   db.Collection("counters"),
	}

	indexes := []struct {
		coll *mongo.Collection
		key  string
	}{
		{m.categories, "name"},
		{m.items, "detail_url"},
	}
	for _, idx := range indexes {
		_, err := idx.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.key, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("create %s index: %w", idx.key, err)
		}
	}
	_, err = m.items.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category_name", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create category_name index: %w", err)
	}

	return m, nil
}

func (m *Mongo) UpsertCategory(ctx context.Context, name string) (models.Category, bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Category{}, false, err
	}

	var existing models.Category
	err = m.categories.FindOne(ctx, bson.M{"name": name}).Decode(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Category{}, false, fmt.Errorf("find category %q: %w", name, err)
	}

	id, err := m.nextID(ctx, "categories")
	if err != nil {
		return models.Category{}, false, err
	}
	category := models.Category{ID: id, Name: name, CreatedAt: mongoNow()}
	if _, err := m.categories.InsertOne(ctx, category); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return models.Category{}, false, fmt.Errorf("insert category %q: %w", name, err)
		}
		if err := m.categories.FindOne(ctx, bson.M{"name": name}).Decode(&existing); err != nil {
			return models.Category{}, false, fmt.Errorf("read category %q: %w", name, err)
		}
		return existing, false, nil
	}
	return category, true, nil
}

func (m *Mongo) UpsertItem(ctx context.Context, parsed models.ParsedItem) (models.Item, bool, error) {
	parsed, err := normalizeItem(parsed)
	if err != nil {
		return models.Item{}, false, err
	}

	existing, err := m.GetItem(ctx, parsed.DetailURL)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Item{}, false, err
	}

	id, err := m.nextID(ctx, "items")
	if err != nil {
		return models.Item{}, false, err
	}
	item := models.NewItem(parsed)
	item.ID = id
	item.CreatedAt = mongoNow()
	if _, err := m.items.InsertOne(ctx, item); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return models.Item{}, false, fmt.Errorf("insert item %s: %w", parsed.DetailURL, err)
		}
		existing, err := m.GetItem(ctx, parsed.DetailURL)
		if err != nil {
			return models.Item{}, false, fmt.Errorf("read item %s: %w", parsed.DetailURL, err)
		}
		return existing, false, nil
	}
	return item, true, nil
}

func (m *Mongo) CountCategories(ctx context.Context) (int, error) {
	n, err := m.categories.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return int(n), nil
}

func (m *Mongo) ListCategories(ctx context.Context, page Page) ([]models.Category, error) {
	page = page.normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := m.categories.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return categories, nil
}

func (m *Mongo) ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error) {
	page := filter.Page.normalized()

	query := bson.M{}
	if filter.Category != "" {
		query["category_name"] = filter.Category
	}
	if filter.TitleContains != "" {
		query["title"] = bson.M{"$regex": regexp.QuoteMeta(filter.TitleContains), "$options": "i"}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := m.items.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.Item{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

func (m *Mongo) GetItem(ctx context.Context, detailURL string) (models.Item, error) {
	var item models.Item
	err := m.items.FindOne(ctx, bson.M{"detail_url": strings.TrimSpace(detailURL)}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("find item %s: %w", detailURL, err)
	}
	return item, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) nextID(ctx context.Context, sequence string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": sequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", sequence, err)
	}
	return counter.Seq, nil
}

// BSON dates carry millisecond precision.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
