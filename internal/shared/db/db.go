package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate aplica o schema embutido (idempotente: CREATE ... IF NOT EXISTS)
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// IsUniqueViolation identifica violação de constraint UNIQUE (SQLSTATE 23505)
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsDataError identifica erros definitivos da linha gravada: dado inválido
// (classe 22, ex.: uuid malformado) ou constraint violada (classe 23, ex.: FK).
// Repetir a mesma gravação não muda o resultado.
func IsDataError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		c := pqErr.Code.Class()
		return c == "22" || c == "23"
	}
	return false
}
