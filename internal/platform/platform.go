// Package platform opens the backends selected by configuration and builds
// the repositories, change feed and revocation store on top of them.
package platform

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/persistence"
	"github.com/spec-kit/job-tracker/internal/repository"
	"github.com/spec-kit/job-tracker/internal/repository/sqlitestore"
)

// Pinger is a backend that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Platform holds every opened backend. Fields for drivers that are not
// configured stay nil.
type Platform struct {
	Jobs        repository.JobRepository
	Profiles    repository.ProfileRepository
	Roles       repository.RoleRepository
	Feed        events.Feed
	Revocations auth.RevocationStore

	Postgres *persistence.Postgres
	SQLite   *persistence.SQLite
	Redis    *persistence.Redis
	AMQP     *amqp.Connection

	logger *zap.Logger
}

// Open connects the store, then Redis when a driver needs it, then the
// change feed. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Platform, error) {
	p := &Platform{logger: logger}
	if err := p.openStore(ctx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	if cfg.NeedsRedis() {
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Redis = rdb
	}
	if err := p.openFeed(cfg); err != nil {
		p.Close()
		return nil, err
	}

	switch cfg.Auth.RevocationDriver {
	case config.RevocationDriverRedis:
		p.Revocations = auth.NewRedisRevocationStore(p.Redis.Client, cfg.Auth.RevocationPrefix)
	default:
		p.Revocations = auth.NewMemoryRevocationStore()
	}
	return p, nil
}

func (p *Platform) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, p.logger)
		if err != nil {
			return err
		}
		p.Postgres = pg
		if cfg.Store.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, p.logger); err != nil {
				return fmt.Errorf("run postgres migrations: %w", err)
			}
		}
		p.Jobs = repository.NewJobRepository(pg.Pool)
		p.Profiles = repository.NewProfileRepository(pg.Pool)
		p.Roles = repository.NewRoleRepository(pg.Pool)
	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, p.logger)
		if err != nil {
			return err
		}
		p.SQLite = db
		if cfg.Store.RunMigrations {
			if err := persistence.RunSQLiteMigrations(ctx, db.DB, p.logger); err != nil {
				return fmt.Errorf("run sqlite migrations: %w", err)
			}
		}
		p.Jobs = sqlitestore.NewJobRepository(db.DB)
		p.Profiles = sqlitestore.NewProfileRepository(db.DB)
		p.Roles = sqlitestore.NewRoleRepository(db.DB)
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (p *Platform) openFeed(cfg config.Config) error {
	switch cfg.Feed.Driver {
	case config.FeedDriverMemory:
		p.Feed = events.NewMemoryFeed(cfg.Feed.BufferSize)
	case config.FeedDriverRedis:
		p.Feed = events.NewRedisFeed(p.Redis.Client, cfg.Feed.Channel, cfg.Feed.BufferSize, p.logger)
	case config.FeedDriverAMQP:
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		p.AMQP = conn
		feed, err := events.NewAMQPFeed(conn, cfg.AMQP.Exchange, cfg.Feed.BufferSize, p.logger)
		if err != nil {
			return err
		}
		p.Feed = feed
	default:
		return fmt.Errorf("unsupported feed driver %q", cfg.Feed.Driver)
	}
	p.logger.Info("change feed ready", zap.String("driver", cfg.Feed.Driver))
	return nil
}

// Pingers returns the opened backends that can report their health, keyed
// by name.
func (p *Platform) Pingers() map[string]Pinger {
	pingers := map[string]Pinger{}
	if p.Postgres != nil {
		pingers["postgres"] = p.Postgres
	}
	if p.SQLite != nil {
		pingers["sqlite"] = p.SQLite
	}
	if p.Redis != nil {
		pingers["redis"] = p.Redis
	}
	return pingers
}

// Close releases backends in reverse order of opening.
func (p *Platform) Close() {
	if p.Feed != nil {
		if err := p.Feed.Close(); err != nil {
			p.logger.Warn("close change feed", zap.Error(err))
		}
	}
	if p.AMQP != nil {
		_ = p.AMQP.Close()
	}
	p.Redis.Close()
	p.SQLite.Close()
	p.Postgres.Close()
}
