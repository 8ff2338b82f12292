package prediction

import (
	"context"
	"database/sql"
	"errors"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

// ErrPredictionsExist indica que outra instância gravou as previsões da partida primeiro
var ErrPredictionsExist = errors.New("predictions already stored for fixture")

// FixtureInfo traz o necessário para chamar o oráculo
type FixtureInfo struct {
	ID       string
	Status   domain.FixtureStatus
	HomeTeam string
	AwayTeam string
}

type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Fixture(ctx context.Context, id string) (FixtureInfo, error) {
	f := FixtureInfo{ID: id}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT f.status, h.name, a.name
		FROM fixtures f
		JOIN teams h ON h.id = f.home_team_id
		JOIN teams a ON a.id = f.away_team_id
		WHERE f.id = $1`, id).Scan(&status, &f.HomeTeam, &f.AwayTeam)
	if errors.Is(err, sql.ErrNoRows) {
		return f, domain.ErrNotFound
	}
	f.Status = domain.FixtureStatus(status)
	return f, err
}

func (s *PostgresStore) HasPredictions(ctx context.Context, fixtureID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM predictions WHERE fixture_id=$1)`, fixtureID).Scan(&ok)
	return ok, err
}

// SavePredictions grava todas as linhas da partida numa transação.
// Se alguma linha já existia a transação é desfeita e devolve ErrPredictionsExist.
func (s *PostgresStore) SavePredictions(ctx context.Context, ps []domain.Prediction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predictions (id,fixture_id,market,selection,probability,fair_odds,market_odds,ev,model_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (fixture_id, market, selection, model_version) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range ps {
		res, err := stmt.ExecContext(ctx,
			p.ID, p.FixtureID, string(p.Market), string(p.Selection),
			p.Probability, p.FairOdds, nullFloat(p.MarketOdds), nullFloat(p.EV), p.ModelVersion,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrPredictionsExist
		}
	}
	return tx.Commit()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
