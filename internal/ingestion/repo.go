package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/provider"
	"github.com/radieske/sports-prediction-pipeline/internal/reconcile"
)

// FixtureRow é o jogo já com ids internos
type FixtureRow struct {
	LeagueID   string
	HomeTeamID string
	AwayTeamID string
	Kickoff    time.Time
	Status     domain.FixtureStatus
	Score      *domain.Score
}

// Repo grava as entidades. Os Insert* rodam dentro da transação do reconciler
// e encontram a entidade pela chave natural antes de criar.
type Repo interface {
	InsertLeague(ctx context.Context, q reconcile.Querier, l provider.League) (string, error)
	InsertTeam(ctx context.Context, q reconcile.Querier, t provider.Team) (string, error)
	InsertFixture(ctx context.Context, q reconcile.Querier, f FixtureRow) (string, error)
	// UpdateFixture grava status e placar e devolve o status anterior
	UpdateFixture(ctx context.Context, id string, status domain.FixtureStatus, score *domain.Score) (domain.FixtureStatus, error)
	HasPredictions(ctx context.Context, fixtureID string) (bool, error)
}

type PostgresRepo struct{ db *sql.DB }

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertLeague(ctx context.Context, q reconcile.Querier, l provider.League) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO leagues (id, name, country) VALUES ($1,$2,$3)
		ON CONFLICT (name, country) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, uuid.NewString(), l.Name, l.Country).Scan(&id)
	return id, err
}

func (r *PostgresRepo) InsertTeam(ctx context.Context, q reconcile.Querier, t provider.Team) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO teams (id, name, logo) VALUES ($1,$2,$3)
		ON CONFLICT (name) DO UPDATE SET logo = COALESCE(NULLIF(EXCLUDED.logo, ''), teams.logo)
		RETURNING id`, uuid.NewString(), t.Name, t.Logo).Scan(&id)
	return id, err
}

func (r *PostgresRepo) InsertFixture(ctx context.Context, q reconcile.Querier, f FixtureRow) (string, error) {
	home, away := scoreArgs(f.Score)
	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO fixtures (id, league_id, home_team_id, away_team_id, kickoff, status, home_score, away_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (league_id, home_team_id, away_team_id, kickoff) DO UPDATE SET updated_at = now()
		RETURNING id`,
		uuid.NewString(), f.LeagueID, f.HomeTeamID, f.AwayTeamID, f.Kickoff, string(f.Status), home, away,
	).Scan(&id)
	return id, err
}

// UpdateFixture trava a linha, então não corre junto com uma aposta em colocação (FOR SHARE)
func (r *PostgresRepo) UpdateFixture(ctx context.Context, id string, status domain.FixtureStatus, score *domain.Score) (domain.FixtureStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM fixtures WHERE id=$1 FOR UPDATE`, id).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	home, away := scoreArgs(score)
	if _, err := tx.ExecContext(ctx, `
		UPDATE fixtures
		SET status=$2, home_score=COALESCE($3, home_score), away_score=COALESCE($4, away_score), updated_at=now()
		WHERE id=$1`, id, string(status), home, away); err != nil {
		return "", err
	}
	return domain.FixtureStatus(prev), tx.Commit()
}

func (r *PostgresRepo) HasPredictions(ctx context.Context, fixtureID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM predictions WHERE fixture_id=$1)`, fixtureID).Scan(&ok)
	return ok, err
}

func scoreArgs(s *domain.Score) (sql.NullInt64, sql.NullInt64) {
	if s == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(s.Home), Valid: true}, sql.NullInt64{Int64: int64(s.Away), Valid: true}
}
