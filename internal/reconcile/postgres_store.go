package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/shared/db"
)

// PostgresStore grava mapeamentos em provider_mappings
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

func (s *PostgresStore) Get(ctx context.Context, key Key) (string, error) {
	return getMapping(ctx, s.DB, key)
}

// Create usa advisory lock por chave dentro da transação: processos diferentes
// resolvendo a mesma chave esperam o primeiro terminar e encontram o mapeamento
// na re-verificação. A constraint UNIQUE cobre o que escapar do lock.
func (s *PostgresStore) Create(ctx context.Context, key Key, create CreateFunc) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return "", fmt.Errorf("advisory lock: %w", err)
	}

	id, err := getMapping(ctx, tx, key)
	if err == nil {
		return id, tx.Commit()
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	if id, err = create(ctx, tx); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO provider_mappings (provider_name, external_id, entity_type, internal_id)
		VALUES ($1, $2, $3, $4)`,
		key.Provider, key.ExternalID, string(key.Entity), id,
	); err != nil {
		if db.IsUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrDuplicateMapping, key)
		}
		return "", fmt.Errorf("insert mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrDuplicateMapping, key)
		}
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) ExternalID(ctx context.Context, provider string, entity domain.EntityType, internalID string) (string, error) {
	var ext string
	err := s.DB.QueryRowContext(ctx, `
		SELECT external_id FROM provider_mappings
		WHERE provider_name = $1 AND entity_type = $2 AND internal_id = $3
		LIMIT 1`, provider, string(entity), internalID).Scan(&ext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return ext, err
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMapping(ctx context.Context, q rowQuerier, key Key) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT internal_id FROM provider_mappings
		WHERE provider_name = $1 AND external_id = $2 AND entity_type = $3`,
		key.Provider, key.ExternalID, string(key.Entity)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return id, err
}
