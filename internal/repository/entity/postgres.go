package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Drivers registered under "pgx" and "postgres".
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/oshokin/safezone/internal/domain/tracking"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// SQL statements used by PostgresRepository.
const (
	createEntitiesTable = `CREATE TABLE IF NOT EXISTS safezone_entities (
	id          TEXT PRIMARY KEY,
	farm_id     TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL DEFAULT '',
	zone        TEXT NOT NULL DEFAULT 'unknown',
	state       JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

	selectEntity = `SELECT state FROM safezone_entities WHERE id = $1`

	selectEntities = `SELECT state FROM safezone_entities ORDER BY id`

	upsertEntity = `INSERT INTO safezone_entities (id, farm_id, owner_id, zone, state, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	farm_id = EXCLUDED.farm_id,
	owner_id = EXCLUDED.owner_id,
	zone = EXCLUDED.zone,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at`
)

// PostgresRepository stores entities in PostgreSQL through database/sql.
// The JSON form lives in a JSONB column; farm, owner and zone are copied
// into plain columns for operators querying the table directly.
type PostgresRepository struct {
	// db is the connection pool.
	db *sql.DB
	// now returns the row update time.
	now func() time.Time
}

// OpenPostgres opens a pool with the named driver ("postgres" for lib/pq, "pgx" for pgx).
func OpenPostgres(ctx context.Context, driver, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewPostgresRepository wraps an open pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: time.Now,
	}
}

// Migrate creates the entities table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createEntitiesTable); err != nil {
		return fmt.Errorf("create entities table: %w", err)
	}

	return nil
}

// Load reads one entity.
func (r *PostgresRepository) Load(ctx context.Context, id string) (*tracking.Entity, error) {
	var state []byte

	err := r.db.QueryRowContext(ctx, selectEntity, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("select entity: %w", err)
	}

	e, err := pb.UnmarshalEntity(state)
	if err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", id, err)
	}

	return e, nil
}

// Save upserts the entity.
func (r *PostgresRepository) Save(ctx context.Context, e *tracking.Entity) error {
	state, err := pb.MarshalEntity(e)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, upsertEntity,
		e.ID, e.FarmID, e.OwnerID, e.Zone.String(), state, r.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}

	return nil
}

// List reads every entity ordered by id.
func (r *PostgresRepository) List(ctx context.Context) ([]*tracking.Entity, error) {
	rows, err := r.db.QueryContext(ctx, selectEntities)
	if err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}

	defer rows.Close()

	var result []*tracking.Entity

	for rows.Next() {
		var state []byte
		if err = rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}

		e, err := pb.UnmarshalEntity(state)
		if err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}

		result = append(result, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	return result, nil
}
