package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres implements Store on a single JSONB documents table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection with sane pool defaults and ensures the
// schema exists.
func NewPostgres(connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection  TEXT NOT NULL,
		doc_id      TEXT NOT NULL,
		data        JSONB NOT NULL,
		unique_key  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, doc_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_unique_key
		ON documents (collection, unique_key) WHERE unique_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Healthy verifies database connectivity.
func (p *Postgres) Healthy(ctx context.Context) bool {
	if p == nil || p.db == nil {
		return false
	}
	return p.db.PingContext(ctx) == nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Doc{}, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return Doc{ID: id, Data: data}, nil
}

func (p *Postgres) Query(ctx context.Context, collection string, filters map[string]any, limit int) ([]Doc, error) {
	query := `SELECT doc_id, data FROM documents WHERE collection = $1`
	args := []any{collection}
	if len(filters) > 0 {
		predicate, err := json.Marshal(filters)
		if err != nil {
			return nil, err
		}
		query += ` AND data @> $2::jsonb`
		args = append(args, string(predicate))
	}
	query += ` ORDER BY created_at`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Doc{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (p *Postgres) Put(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data
	`, collection, id, raw)
	return err
}

func (p *Postgres) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)
	`, collection, id, raw)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddUnique relies on the partial unique index over (collection, unique_key),
// so the existence check and the insert are one statement.
func (p *Postgres) AddUnique(ctx context.Context, collection, uniqueKey string, data map[string]any) (string, bool, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", false, err
	}
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, data, unique_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, unique_key) WHERE unique_key IS NOT NULL DO NOTHING
	`, collection, id, raw, uniqueKey)
	if err != nil {
		return "", false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	return id, true, nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	)
	return err
}

func (p *Postgres) BatchSet(ctx context.Context, docs []BatchDoc) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		raw, err := json.Marshal(d.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, doc_id, data)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, doc_id) DO UPDATE SET data = EXCLUDED.data
		`, d.Collection, id, raw); err != nil {
			return err
		}
	}
	return tx.Commit()
}
