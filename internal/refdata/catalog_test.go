package refdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAndRequire(t *testing.T) {
	practice, location := uuid.New(), uuid.New()
	c := NewStatic().Add(KindLocation, practice, location)
	ctx := context.Background()

	require.NoError(t, Require(ctx, c, KindLocation, practice, location))
	err := Require(ctx, c, KindLocation, uuid.New(), location)
	assert.ErrorIs(t, err, ErrNotFound)
	err = Require(ctx, c, KindPractitioner, practice, location)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresContains(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	c := NewPostgres(mock)
	scope, id := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM practitioners WHERE id = \\$1 AND location_id = \\$2").
		WithArgs(id, scope).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := c.Contains(context.Background(), KindPractitioner, scope, id)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("FROM rule_sets").WithArgs(id, scope).WillReturnError(pgx.ErrTxClosed)
	_, err = c.Contains(context.Background(), KindRuleSet, scope, id)
	assert.ErrorIs(t, err, pgx.ErrTxClosed)

	_, err = c.Contains(context.Background(), Kind("clinic"), scope, id)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type countingCatalog struct {
	calls  int
	answer bool
	err    error
}

func (c *countingCatalog) Contains(ctx context.Context, kind Kind, scope, id uuid.UUID) (bool, error) {
	c.calls++
	return c.answer, c.err
}

func TestCachedReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backing := &countingCatalog{answer: true}
	c := NewCached(backing, client, time.Minute, nil)
	ctx := context.Background()
	scope, id := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		ok, err := c.Contains(ctx, KindAppointmentType, scope, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, backing.calls)
	assert.True(t, mr.Exists(cacheKey(KindAppointmentType, scope, id)))

	mr.FastForward(2 * time.Minute)
	_, err := c.Contains(ctx, KindAppointmentType, scope, id)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedDoesNotCacheMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backing := &countingCatalog{answer: false}
	c := NewCached(backing, client, time.Minute, nil)
	ctx := context.Background()
	scope, id := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		ok, err := c.Contains(ctx, KindLocation, scope, id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, backing.calls)
	assert.Empty(t, mr.Keys())

	backing.err = errors.New("db down")
	_, err := c.Contains(ctx, KindLocation, scope, id)
	assert.Error(t, err)
}

func TestCachedWithoutRedis(t *testing.T) {
	backing := &countingCatalog{answer: true}
	c := NewCached(backing, nil, 0, nil)
	ok, err := c.Contains(context.Background(), KindLocation, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}
