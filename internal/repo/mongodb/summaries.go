package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/observability"
)

// summaryDoc keeps content as its JSON encoding so block documents round-trip
// with the exact shape the editor produced.
type summaryDoc struct {
	ID          string    `bson:"_id"`
	BookID      string    `bson:"book_id"`
	Title       string    `bson:"title"`
	Format      string    `bson:"format"`
	Content     string    `bson:"content_json"`
	PlainText   string    `bson:"plain_text"`
	ReadingTime int       `bson:"reading_time"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toSummaryDoc(s summary.Summary) (summaryDoc, error) {
	content, err := json.Marshal(s.Content)
	if err != nil {
		return summaryDoc{}, err
	}
	return summaryDoc{
		ID:          s.ID,
		BookID:      s.BookID,
		Title:       s.Title,
		Format:      string(s.Format),
		Content:     string(content),
		PlainText:   s.PlainText,
		ReadingTime: s.ReadingTime,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

func (d summaryDoc) toSummary() (summary.Summary, error) {
	format := summary.Format(d.Format)
	content, err := summary.ParseContent(format, json.RawMessage(d.Content))
	if err != nil {
		return summary.Summary{}, err
	}
	return summary.Summary{
		ID:          d.ID,
		BookID:      d.BookID,
		Title:       d.Title,
		Format:      format,
		Content:     content,
		PlainText:   d.PlainText,
		ReadingTime: d.ReadingTime,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type SummariesRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func (r *SummariesRepo) Create(ctx context.Context, s summary.Summary) error {
	doc, err := toSummaryDoc(s)
	if err != nil {
		return err
	}

	err = r.prom.ObserveStore(driver, "summaries.create", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return summary.ErrExists
	}
	return err
}

func (r *SummariesRepo) GetByBook(ctx context.Context, bookID string) (summary.Summary, error) {
	var doc summaryDoc

	err := r.prom.ObserveStore(driver, "summaries.get", func() error {
		return r.coll.FindOne(ctx, bson.D{{Key: "book_id", Value: bookID}}).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return summary.Summary{}, summary.ErrNotFound
		}
		return summary.Summary{}, err
	}
	return doc.toSummary()
}

func (r *SummariesRepo) Update(ctx context.Context, bookID string, patch summary.Patch) (summary.Summary, error) {
	current, err := r.GetByBook(ctx, bookID)
	if err != nil {
		return summary.Summary{}, err
	}

	next := current.Apply(patch)
	doc, err := toSummaryDoc(next)
	if err != nil {
		return summary.Summary{}, err
	}

	err = r.prom.ObserveStore(driver, "summaries.update", func() error {
		res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "book_id", Value: bookID}}, doc)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return summary.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return summary.Summary{}, err
	}
	return next, nil
}
