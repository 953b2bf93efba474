package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/praxis-booking/internal/appointments"
	"github.com/wolfman30/praxis-booking/internal/events"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/steprecords"
)

// Pool is the subset of *pgxpool.Pool the transactor needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres runs each unit of work in one pgx transaction.
type Postgres struct {
	pool Pool
}

func NewPostgres(pool Pool) *Postgres {
	if pool == nil {
		panic("storage: pgx pool required")
	}
	return &Postgres{pool: pool}
}

func reposFor(q querier) Repos {
	return Repos{
		Sessions:     sessions.NewStore(q),
		Steps:        steprecords.NewStore(q),
		Appointments: appointments.NewRepository(q),
		Outbox:       events.NewOutboxStore(q),
	}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	committed = true
	return nil
}
