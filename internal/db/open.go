package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
	"github.com/geocoder89/booknotes/internal/repo/memory"
	"github.com/geocoder89/booknotes/internal/repo/mongodb"
	"github.com/geocoder89/booknotes/internal/repo/postgres"
)

// Open connects the backend named by cfg.StoreDriver and prepares its schema.
// The returned Store must be closed at shutdown.
func Open(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.DBURL)
		if err != nil {
			return repo.Store{}, fmt.Errorf("postgres pool: %w", err)
		}

		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return repo.Store{}, err
		}
		log.Info("postgres store ready")

		users, books, summaries := postgres.New(pool, prom)
		return repo.Store{
			Driver:    config.DriverPostgres,
			Users:     users,
			Books:     books,
			Summaries: summaries,
			Ping:      pool.Ping,
			Close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverMongo:
		mdb, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB, prom)
		if err != nil {
			return repo.Store{}, err
		}

		if err := mdb.EnsureIndexes(ctx); err != nil {
			_ = mdb.Close(context.Background())
			return repo.Store{}, err
		}
		log.Info("mongo store ready", "database", cfg.MongoDB)

		return repo.Store{
			Driver:    config.DriverMongo,
			Users:     mdb.Users(),
			Books:     mdb.Books(),
			Summaries: mdb.Summaries(),
			Ping:      mdb.Ping,
			Close:     mdb.Close,
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return OpenMemory(), nil

	default:
		return repo.Store{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func OpenMemory() repo.Store {
	mem := memory.New()

	return repo.Store{
		Driver:    config.DriverMemory,
		Users:     mem.Users(),
		Books:     mem.Books(),
		Summaries: mem.Summaries(),
		Ping:      func(context.Context) error { return nil },
		Close:     func(context.Context) error { return nil },
	}
}
