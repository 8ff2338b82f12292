package risk

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Portfolio(ctx context.Context, id string) (domain.Portfolio, error) {
	p := domain.Portfolio{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT bankroll, initial_bankroll, circuit_breaker_threshold, is_active
		FROM portfolios WHERE id = $1`, id).
		Scan(&p.Bankroll, &p.InitialBankroll, &p.CircuitBreakerThreshold, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) PendingExposure(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stake), 0) FROM bets
		WHERE portfolio_id = $1 AND status = 'PENDING'`, portfolioID).Scan(&sum)
	return sum, err
}

func (s *PostgresStore) Deactivate(ctx context.Context, portfolioID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE portfolios SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND is_active`, portfolioID)
	return err
}
