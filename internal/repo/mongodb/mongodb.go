// Package mongodb implements the repo contracts on MongoDB. Documents use
// string UUIDs as _id so identifiers look the same on every backend.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
)

const driver = "mongo"

const (
	usersCollection     = "users"
	booksCollection     = "books"
	summariesCollection = "summaries"
)

type DB struct {
	client *mongo.Client
	db     *mongo.Database
	prom   *observability.Prom
}

var (
	_ repo.UserStore    = (*UsersRepo)(nil)
	_ repo.BookStore    = (*BooksRepo)(nil)
	_ repo.SummaryStore = (*SummariesRepo)(nil)
)

// Connect opens a client and verifies the primary is reachable. Cascade
// deletes use multi-document transactions, so the server must run as a
// replica set.
func Connect(ctx context.Context, uri, database string, prom *observability.Prom) (*DB, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &DB{client: client, db: client.Database(database), prom: prom}, nil
}

// EnsureIndexes creates the unique indexes backing email, ISBN and one
// summary per book. It is idempotent.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("users_email_key")},
		},
		booksCollection: {
			{
				Keys: bson.D{{Key: "isbn", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("books_isbn_key").
					SetPartialFilterExpression(bson.D{{Key: "isbn", Value: bson.D{{Key: "$gt", Value: ""}}}}),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "author", Value: 1}}},
			{Keys: bson.D{{Key: "genres", Value: 1}}},
		},
		summariesCollection: {
			{Keys: bson.D{{Key: "book_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("summaries_book_id_key")},
		},
	}

	for coll, models := range indexes {
		if _, err := d.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (d *DB) Users() *UsersRepo {
	return &UsersRepo{coll: d.db.Collection(usersCollection), prom: d.prom}
}

func (d *DB) Books() *BooksRepo {
	return &BooksRepo{
		client:    d.client,
		coll:      d.db.Collection(booksCollection),
		summaries: d.db.Collection(summariesCollection),
		prom:      d.prom,
	}
}

func (d *DB) Summaries() *SummariesRepo {
	return &SummariesRepo{coll: d.db.Collection(summariesCollection), prom: d.prom}
}

func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}

func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
