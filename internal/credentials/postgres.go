package credentials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by PostgresBackend.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBackend stores the record in the client_credentials table.
type PostgresBackend struct {
	db  Querier
	key string
}

// NewPostgresBackend builds a backend bound to one storage key.
func NewPostgresBackend(db Querier, key string) *PostgresBackend {
	return &PostgresBackend{db: db, key: key}
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRow(ctx, `SELECT payload FROM client_credentials WHERE storage_key = $1`, b.key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (b *PostgresBackend) Save(ctx context.Context, payload []byte) error {
	_, err := b.db.Exec(ctx, `INSERT INTO client_credentials (storage_key, payload, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (storage_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, b.key, payload)
	return err
}

func (b *PostgresBackend) Delete(ctx context.Context) error {
	_, err := b.db.Exec(ctx, `DELETE FROM client_credentials WHERE storage_key = $1`, b.key)
	return err
}
