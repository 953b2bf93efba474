package refdata

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the read-only subset of the pgx interface the catalog needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var lookups = map[Kind]string{
	KindRuleSet:         `SELECT EXISTS (SELECT 1 FROM rule_sets WHERE id = $1 AND practice_id = $2)`,
	KindLocation:        `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND practice_id = $2 AND active)`,
	KindAppointmentType: `SELECT EXISTS (SELECT 1 FROM appointment_types WHERE id = $1 AND rule_set_id = $2 AND active)`,
	KindPractitioner:    `SELECT EXISTS (SELECT 1 FROM practitioners WHERE id = $1 AND location_id = $2 AND active)`,
}

// Postgres looks reference data up in the master data tables.
type Postgres struct {
	db DB
}

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Contains(ctx context.Context, kind Kind, scope, id uuid.UUID) (bool, error) {
	query, ok := lookups[kind]
	if !ok {
		return false, fmt.Errorf("refdata: unknown kind %q", kind)
	}
	var exists bool
	if err := p.db.QueryRow(ctx, query, id, scope).Scan(&exists); err != nil {
		return false, fmt.Errorf("refdata: %s: %w", kind, err)
	}
	return exists, nil
}
