package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	appconfig "github.com/wolfman30/praxis-booking/internal/config"
	"github.com/wolfman30/praxis-booking/internal/refdata"
	"github.com/wolfman30/praxis-booking/internal/slots"
	"github.com/wolfman30/praxis-booking/internal/storage"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if client := BuildRedisClient(context.Background(), nil, quietLogger(), true); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, quietLogger(), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildBackendMemoryMode(t *testing.T) {
	b, err := BuildBackend(context.Background(), &appconfig.Config{UseMemoryStore: true}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if _, ok := b.Tx.(*storage.Memory); !ok {
		t.Fatalf("expected memory transactor, got %T", b.Tx)
	}
	if b.Outbox == nil || b.Pool != nil {
		t.Fatalf("expected memory outbox and no pool")
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("memory backend ping: %v", err)
	}
}

func TestBuildBackendRejectsBadConfig(t *testing.T) {
	if _, err := BuildBackend(context.Background(), nil, quietLogger()); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildBackend(context.Background(), &appconfig.Config{}, quietLogger()); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	if _, err := BuildBackend(context.Background(), &appconfig.Config{UseMemoryStore: true, Env: "production"}, quietLogger()); err == nil {
		t.Fatalf("expected memory store to be refused in production")
	}
}

func TestBuildCatalogWrapsWithRedis(t *testing.T) {
	mem := &Backend{}
	if _, ok := BuildCatalog(mem, nil, nil, quietLogger()).(*refdata.Static); !ok {
		t.Fatalf("expected static catalog without pool or redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), false)
	defer client.Close()
	catalog := BuildCatalog(mem, client, &appconfig.Config{}, quietLogger())
	if _, ok := catalog.(*refdata.Cached); !ok {
		t.Fatalf("expected cached catalog, got %T", catalog)
	}
	found, err := catalog.Contains(context.Background(), refdata.KindRuleSet, uuid.New(), uuid.New())
	if err != nil || found {
		t.Fatalf("expected miss from empty catalog, got %v %v", found, err)
	}
}

func TestBuildSlotFinder(t *testing.T) {
	if _, ok := BuildSlotFinder(&appconfig.Config{}, quietLogger()).(*slots.Static); !ok {
		t.Fatalf("expected static finder without engine url")
	}
	if _, ok := BuildSlotFinder(&appconfig.Config{SlotEngineURL: "http://slots.internal"}, quietLogger()).(*slots.Client); !ok {
		t.Fatalf("expected http client when engine url set")
	}
}

func TestBuildOutboxDelivererNeedsRedis(t *testing.T) {
	b, err := BuildBackend(context.Background(), &appconfig.Config{UseMemoryStore: true}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := &appconfig.Config{OutboxStream: "booking.events", OutboxBatchSize: 10}
	if d := BuildOutboxDeliverer(b, nil, cfg, quietLogger()); d != nil {
		t.Fatalf("expected no deliverer without redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), false)
	defer client.Close()
	d := BuildOutboxDeliverer(b, client, cfg, quietLogger())
	if d == nil {
		t.Fatalf("expected deliverer with redis")
	}
	if n := d.Drain(context.Background()); n != 0 {
		t.Fatalf("expected empty outbox, delivered %d", n)
	}
}
