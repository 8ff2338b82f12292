package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

var (
	ErrFixtureClosed = errors.New("fixture closed for betting")
	ErrExposureLimit = errors.New("pending exposure above limit")
)

// Repo persiste apostas simuladas no Postgres
type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// PlacePending bloqueia a partida (FOR SHARE) para não concorrer com a
// liquidação e insere a aposta PENDING com stake = fração * banca atual.
// O portfólio fica travado (FOR UPDATE) enquanto a exposição em aberto é
// recalculada: duas ordens simultâneas não passam juntas do limite.
// limit <= 0 não verifica exposição.
func (r *Repo) PlacePending(ctx context.Context, o Order, limit decimal.Decimal) (domain.Bet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bet{}, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM fixtures WHERE id=$1 FOR SHARE`, o.FixtureID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bet{}, fmt.Errorf("fixture %s: %w", o.FixtureID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Bet{}, err
	}
	if domain.FixtureStatus(status).IsTerminal() {
		return domain.Bet{}, ErrFixtureClosed
	}

	var bankroll decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT bankroll FROM portfolios WHERE id=$1 FOR UPDATE`, o.PortfolioID).Scan(&bankroll); err != nil {
		return domain.Bet{}, err
	}

	b := domain.Bet{
		ID:           uuid.NewString(),
		PortfolioID:  o.PortfolioID,
		FixtureID:    o.FixtureID,
		PredictionID: o.PredictionID,
		Market:       o.Market,
		Selection:    o.Selection,
		Stake:        bankroll.Mul(o.StakeFraction).Round(2),
		Odds:         o.Odds,
		Status:       domain.BetPending,
	}
	if !b.Stake.IsPositive() {
		return domain.Bet{}, fmt.Errorf("stake %s not positive", b.Stake)
	}

	if limit.IsPositive() {
		var pending decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(stake), 0) FROM bets
			WHERE portfolio_id=$1 AND status='PENDING'`, o.PortfolioID).Scan(&pending)
		if err != nil {
			return domain.Bet{}, err
		}
		if pending.Add(b.Stake).GreaterThan(bankroll.Mul(limit)) {
			return domain.Bet{}, ErrExposureLimit
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id,portfolio_id,fixture_id,prediction_id,market,selection,stake,odds,status)
		VALUES ($1,$2,$3,NULLIF($4,'')::uuid,$5,$6,$7,$8,'PENDING')`,
		b.ID, b.PortfolioID, b.FixtureID, b.PredictionID, string(b.Market), string(b.Selection), b.Stake, b.Odds,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	return b, tx.Commit()
}
