package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"

	apperrors "github.com/livite/outreach-backend/internal/errors"
)

const postgresPageSize = 100

// PostgresStore is a self-hosted RecordStore backed by a single records
// table with JSONB property bags. Filters are evaluated in-process after the
// per-entity scan; record volumes here are a few hundred rows per season.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres connects and ensures the schema exists.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates the records table if missing.
func (s *PostgresStore) Migrate() error {
	query := `
        CREATE TABLE IF NOT EXISTS records (
            id          BIGSERIAL PRIMARY KEY,
            entity_type TEXT        NOT NULL,
            archived    BOOLEAN     NOT NULL DEFAULT FALSE,
            properties  JSONB       NOT NULL,
            created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
        );
        CREATE INDEX IF NOT EXISTS records_entity_idx ON records (entity_type, archived, id);
    `
	_, err := s.DB.Exec(query)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, entity EntityType, props Properties) (string, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	query := `
        INSERT INTO records (entity_type, properties)
        VALUES ($1, $2)
        RETURNING id
    `
	var id int64
	if err := s.DB.QueryRowContext(ctx, query, string(entity), data).Scan(&id); err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entity, error) {
	query := `
        SELECT id, entity_type, archived, properties
        FROM records
        WHERE id = $1
    `
	return s.scanOne(s.DB.QueryRowContext(ctx, query, mustInt(id)))
}

func (s *PostgresStore) Update(ctx context.Context, id string, props Properties) error {
	ent, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range props {
		ent.Properties[k] = v
	}
	data, err := json.Marshal(ent.Properties)
	if err != nil {
		return err
	}
	query := `
        UPDATE records
        SET properties = $1
        WHERE id = $2
    `
	_, err = s.DB.ExecContext(ctx, query, data, mustInt(id))
	return err
}

func (s *PostgresStore) Archive(ctx context.Context, id string) error {
	query := `
        UPDATE records
        SET archived = TRUE
        WHERE id = $1
    `
	res, err := s.DB.ExecContext(ctx, query, mustInt(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, entity EntityType, q Query) (Page, error) {
	query := `
        SELECT id, entity_type, archived, properties
        FROM records
        WHERE entity_type = $1 AND archived = FALSE
        ORDER BY id
    `
	rows, err := s.DB.QueryContext(ctx, query, string(entity))
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var matched []Entity
	for rows.Next() {
		ent, err := s.scanRow(rows)
		if err != nil {
			return Page{}, err
		}
		if MatchFilter(ent.Properties, q.Filter) {
			matched = append(matched, ent)
		}
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	if q.Sort != nil {
		sortEntities(matched, *q.Sort)
	}

	offset := 0
	if q.Cursor != "" {
		offset, err = strconv.Atoi(q.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("bad cursor %q", q.Cursor)
		}
	}
	if offset >= len(matched) {
		return Page{}, nil
	}
	end := offset + postgresPageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := Page{Items: matched[offset:end]}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (Entity, error) {
	ent, err := s.scanRow(row)
	if err == sql.ErrNoRows {
		return Entity{}, apperrors.ErrNotFound
	}
	return ent, err
}

func (s *PostgresStore) scanRow(row rowScanner) (Entity, error) {
	var (
		id     int64
		etype  string
		arch   bool
		rawVal []byte
	)
	if err := row.Scan(&id, &etype, &arch, &rawVal); err != nil {
		return Entity{}, err
	}
	var props Properties
	if err := json.Unmarshal(rawVal, &props); err != nil {
		return Entity{}, err
	}
	return Entity{
		ID:         strconv.FormatInt(id, 10),
		Type:       EntityType(etype),
		Archived:   arch,
		Properties: props,
	}, nil
}

func mustInt(id string) int64 {
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}
