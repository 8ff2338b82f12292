package settlement

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) StartRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settlement_runs (id, started_at) VALUES ($1,$2)`, runID, at)
	return err
}

func (s *PostgresStore) FinishRun(ctx context.Context, r Report) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_runs
		SET finished_at=$2, fixtures_scanned=$3, predictions_settled=$4, bets_settled=$5, failures=$6
		WHERE id=$1`,
		r.RunID, r.FinishedAt, r.FixturesScanned, r.PredictionsSettled, r.BetsSettled, r.Failures,
	)
	return err
}

// Candidates: FINISHED com previsões pendentes, ou encerradas (inclui void) com apostas PENDING
func (s *PostgresStore) Candidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.status, f.home_score, f.away_score
		FROM fixtures f
		WHERE (f.status = 'FINISHED'
		       AND EXISTS (SELECT 1 FROM predictions p WHERE p.fixture_id = f.id AND p.is_correct IS NULL))
		   OR (f.status IN ('FINISHED','CANCELLED','POSTPONED','ABANDONED')
		       AND EXISTS (SELECT 1 FROM bets b WHERE b.fixture_id = f.id AND b.status = 'PENDING'))
		ORDER BY f.kickoff`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c          Candidate
			status     string
			home, away sql.NullInt64
		)
		if err := rows.Scan(&c.FixtureID, &status, &home, &away); err != nil {
			return nil, err
		}
		c.Status = domain.FixtureStatus(status)
		if home.Valid && away.Valid {
			c.Score = &domain.Score{Home: int(home.Int64), Away: int(away.Int64)}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UnsettledPredictions(ctx context.Context, fixtureID string) ([]domain.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market, selection, probability, model_version
		FROM predictions WHERE fixture_id=$1 AND is_correct IS NULL`, fixtureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p := domain.Prediction{FixtureID: fixtureID}
		var market, sel string
		if err := rows.Scan(&p.ID, &market, &sel, &p.Probability, &p.ModelVersion); err != nil {
			return nil, err
		}
		p.Market, p.Selection = domain.MarketType(market), domain.Selection(sel)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkPrediction(ctx context.Context, predictionID string, correct bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET is_correct=$2, settled_at=now()
		WHERE id=$1 AND is_correct IS NULL`, predictionID, correct)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PostgresStore) PendingBets(ctx context.Context, fixtureID string) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, market, selection, stake, odds
		FROM bets WHERE fixture_id=$1 AND status='PENDING'`, fixtureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		b := domain.Bet{FixtureID: fixtureID, Status: domain.BetPending}
		var market, sel string
		if err := rows.Scan(&b.ID, &b.PortfolioID, &market, &sel, &b.Stake, &b.Odds); err != nil {
			return nil, err
		}
		b.Market, b.Selection = domain.MarketType(market), domain.Selection(sel)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SettleBet: a troca de status condicionada a PENDING serializa liquidações
// concorrentes; só quem vence credita a banca
func (s *PostgresStore) SettleBet(ctx context.Context, st BetSettlement) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var portfolioID string
	err = tx.QueryRowContext(ctx, `
		UPDATE bets SET status=$2, profit=$3, settled_at=now(), settlement_run_id=$4
		WHERE id=$1 AND status='PENDING'
		RETURNING portfolio_id`,
		st.BetID, string(st.Status), st.Profit, st.RunID,
	).Scan(&portfolioID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE portfolios SET bankroll = bankroll + $2, updated_at = now()
		WHERE id=$1`, portfolioID, st.Profit); err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return portfolioID, true, nil
}
