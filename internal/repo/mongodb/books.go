package mongodb

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/observability"
)

type bookDoc struct {
	ID            string     `bson:"_id"`
	Title         string     `bson:"title"`
	Author        string     `bson:"author"`
	Description   string     `bson:"description"`
	CoverImage    string     `bson:"cover_image"`
	PublishedDate *time.Time `bson:"published_date"`
	ISBN          string     `bson:"isbn"`
	Genres        []string   `bson:"genres"`
	AverageRating float64    `bson:"average_rating"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toBookDoc(b book.Book) bookDoc {
	genres := b.Genres
	if genres == nil {
		genres = []string{}
	}
	return bookDoc{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		CoverImage:    b.CoverImage,
		PublishedDate: b.PublishedDate,
		ISBN:          b.ISBN,
		Genres:        genres,
		AverageRating: b.AverageRating,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func (d bookDoc) toBook() book.Book {
	genres := d.Genres
	if genres == nil {
		genres = []string{}
	}
	return book.Book{
		ID:            d.ID,
		Title:         d.Title,
		Author:        d.Author,
		Description:   d.Description,
		CoverImage:    d.CoverImage,
		PublishedDate: d.PublishedDate,
		ISBN:          d.ISBN,
		Genres:        genres,
		AverageRating: d.AverageRating,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type BooksRepo struct {
	client    *mongo.Client
	coll      *mongo.Collection
	summaries *mongo.Collection
	prom      *observability.Prom
}

func (r *BooksRepo) Create(ctx context.Context, b book.Book) error {
	err := r.prom.ObserveStore(driver, "books.create", func() error {
		_, err := r.coll.InsertOne(ctx, toBookDoc(b))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return book.ErrISBNTaken
	}
	return err
}

func (r *BooksRepo) GetByID(ctx context.Context, id string) (book.Book, error) {
	var doc bookDoc

	err := r.prom.ObserveStore(driver, "books.get", func() error {
		return r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return book.Book{}, book.ErrNotFound
		}
		return book.Book{}, err
	}
	return doc.toBook(), nil
}

func listFilter(f book.ListBooksFilter) bson.D {
	filter := bson.D{}

	if f.Search != nil {
		filter = append(filter, bson.E{Key: "title", Value: bson.Regex{Pattern: regexp.QuoteMeta(*f.Search), Options: "i"}})
	}
	if f.Author != nil {
		filter = append(filter, bson.E{Key: "author", Value: *f.Author})
	}
	if f.Genre != nil {
		filter = append(filter, bson.E{Key: "genres", Value: book.NormalizeGenre(*f.Genre)})
	}
	return filter
}

func (r *BooksRepo) List(ctx context.Context, f book.ListBooksFilter) ([]book.Book, int, error) {
	filter := listFilter(f)
	output := make([]book.Book, 0, f.Limit)
	var total int64

	err := r.prom.ObserveStore(driver, "books.list", func() error {
		var err error
		total, err = r.coll.CountDocuments(ctx, filter)
		if err != nil {
			return err
		}

		opts := options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetSkip(int64(f.Offset))
		if f.Limit > 0 {
			opts.SetLimit(int64(f.Limit))
		}

		cur, err := r.coll.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc bookDoc
			if err := cur.Decode(&doc); err != nil {
				return err
			}
			output = append(output, doc.toBook())
		}
		return cur.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return output, int(total), nil
}

func (r *BooksRepo) ISBNInUse(ctx context.Context, isbn, excludeID string) (bool, error) {
	if isbn == "" {
		return false, nil
	}

	var n int64
	err := r.prom.ObserveStore(driver, "books.isbn_in_use", func() error {
		var err error
		n, err = r.coll.CountDocuments(ctx, bson.D{
			{Key: "isbn", Value: isbn},
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: excludeID}}},
		}, options.Count().SetLimit(1))
		return err
	})
	return n > 0, err
}

func (r *BooksRepo) Update(ctx context.Context, id string, req book.UpdateBookRequest) (book.Book, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return book.Book{}, err
	}

	next := current.Apply(req)

	err = r.prom.ObserveStore(driver, "books.update", func() error {
		res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, toBookDoc(next))
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return book.ErrNotFound
		}
		return nil
	})
	if mongo.IsDuplicateKeyError(err) {
		return book.Book{}, book.ErrISBNTaken
	}
	if err != nil {
		return book.Book{}, err
	}
	return next, nil
}

// DeleteWithSummary deletes the summary and the book inside one session
// transaction.
func (r *BooksRepo) DeleteWithSummary(ctx context.Context, id string) error {
	return r.prom.ObserveStore(driver, "books.delete", func() error {
		sess, err := r.client.StartSession()
		if err != nil {
			return err
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
			if _, err := r.summaries.DeleteOne(ctx, bson.D{{Key: "book_id", Value: id}}); err != nil {
				return nil, err
			}

			res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
			if err != nil {
				return nil, err
			}
			if res.DeletedCount == 0 {
				return nil, book.ErrNotFound
			}
			return nil, nil
		})
		return err
	})
}
