package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/internal/risk"
)

type Status string

const (
	StatusPlaced   Status = "PLACED"
	StatusRejected Status = "REJECTED"
	StatusSkipped  Status = "SKIPPED"
)

const ReasonFixtureClosed = "FIXTURE_CLOSED"

// Order é o pedido de aposta simulada gerado a partir de um sinal
type Order struct {
	PortfolioID   string
	FixtureID     string
	PredictionID  string
	Market        domain.MarketType
	Selection     domain.Selection
	Odds          decimal.Decimal
	StakeFraction decimal.Decimal
}

// Result descreve o desfecho da execução
type Result struct {
	Status Status
	Reason string
	BetID  string
	Stake  decimal.Decimal
}

// Gate é a verificação de risco antes da execução
type Gate interface {
	CheckEligibility(ctx context.Context, portfolioID string, stakeFraction decimal.Decimal) (risk.Decision, error)
}

// Placer registra apostas PENDING sem mexer na banca; a banca só muda na liquidação
type Placer struct {
	Repo *Repo
	Risk Gate
	Log  *zap.Logger
}

func NewPlacer(repo *Repo, gate Gate, log *zap.Logger) *Placer {
	return &Placer{Repo: repo, Risk: gate, Log: log}
}

func (p *Placer) Place(ctx context.Context, o Order) (Result, error) {
	if !o.StakeFraction.IsPositive() {
		return Result{Status: StatusSkipped, Reason: "NO_EDGE"}, nil
	}

	dec, err := p.Risk.CheckEligibility(ctx, o.PortfolioID, o.StakeFraction)
	if err != nil {
		return Result{}, fmt.Errorf("risk check: %w", err)
	}
	if !dec.Eligible {
		p.Log.Info("order rejected by risk policy",
			zap.String("portfolio_id", o.PortfolioID),
			zap.String("fixture_id", o.FixtureID),
			zap.String("reason", string(dec.Reason)),
		)
		return Result{Status: StatusRejected, Reason: string(dec.Reason)}, nil
	}

	bet, err := p.Repo.PlacePending(ctx, o, dec.Limit)
	if errors.Is(err, ErrFixtureClosed) {
		return Result{Status: StatusRejected, Reason: ReasonFixtureClosed}, nil
	}
	if errors.Is(err, ErrExposureLimit) {
		// outra ordem do mesmo portfólio entrou entre a checagem e a gravação
		return Result{Status: StatusRejected, Reason: string(risk.ReasonExposureLimit)}, nil
	}
	if err != nil {
		return Result{}, err
	}

	p.Log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("portfolio_id", o.PortfolioID),
		zap.String("fixture_id", o.FixtureID),
		zap.String("stake", bet.Stake.StringFixed(2)),
	)
	return Result{Status: StatusPlaced, BetID: bet.ID, Stake: bet.Stake}, nil
}
