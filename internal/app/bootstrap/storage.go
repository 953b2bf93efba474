package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/praxis-booking/internal/config"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/refdata"
	"github.com/wolfman30/praxis-booking/internal/slots"
	"github.com/wolfman30/praxis-booking/internal/storage"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

// Backend bundles the persistence a binary runs against.
type Backend struct {
	Tx     storage.Transactor
	Outbox events.Source
	// Pool is nil in memory mode.
	Pool *pgxpool.Pool
}

// Close releases the Postgres pool, if any.
func (b *Backend) Close() {
	if b != nil && b.Pool != nil {
		b.Pool.Close()
	}
}

// Ping reports whether the backing database answers.
func (b *Backend) Ping(ctx context.Context) error {
	if b.Pool == nil {
		return nil
	}
	return b.Pool.Ping(ctx)
}

// BuildBackend connects to Postgres, or returns an in-process store when
// USE_MEMORY_STORE is set.
func BuildBackend(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: memory store is not allowed in production")
		}
		logger.Warn("using in-memory store; data is lost on restart")
		mem := storage.NewMemory()
		return &Backend{Tx: mem, Outbox: mem}, nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return &Backend{
		Tx:     storage.NewPostgres(pool),
		Outbox: events.NewOutboxStore(pool),
		Pool:   pool,
	}, nil
}

// BuildCatalog returns the reference data catalog, cached in Redis when a
// client is available. Without a pool the catalog is empty.
func BuildCatalog(b *Backend, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) refdata.Catalog {
	if logger == nil {
		logger = logging.Default()
	}
	var catalog refdata.Catalog
	if b != nil && b.Pool != nil {
		catalog = refdata.NewPostgres(b.Pool)
	} else {
		logger.Warn("no reference data source; every practice lookup will miss")
		catalog = refdata.NewStatic()
	}
	if redisClient == nil {
		return catalog
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.RefDataCacheTTL
	}
	return refdata.NewCached(catalog, redisClient, ttl, logger)
}

// BuildSlotFinder returns the HTTP slot engine client, or a finder that
// offers nothing when SLOT_ENGINE_URL is unset.
func BuildSlotFinder(cfg *appconfig.Config, logger *logging.Logger) slots.Finder {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || cfg.SlotEngineURL == "" {
		logger.Warn("SLOT_ENGINE_URL not set; calendar steps will offer no slots")
		return &slots.Static{}
	}
	return slots.NewClient(cfg.SlotEngineURL, cfg.SlotEngineTimeout, logger)
}

// BuildOutboxDeliverer publishes outbox entries to the configured Redis
// stream. It returns nil when Redis is unavailable; entries then stay
// pending until a deliverer with Redis runs.
func BuildOutboxDeliverer(b *Backend, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *events.Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	if b == nil || b.Outbox == nil || redisClient == nil || cfg == nil {
		logger.Warn("outbox delivery disabled; events stay pending")
		return nil
	}
	publisher := events.NewStreamPublisher(redisClient, cfg.OutboxStream, 10000)
	return events.NewDeliverer(b.Outbox, publisher, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)
}
