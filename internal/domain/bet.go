package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetStatus string

const (
	BetPending BetStatus = "PENDING"
	BetWon     BetStatus = "WON"
	BetLost    BetStatus = "LOST"
	BetVoid    BetStatus = "VOID"
)

// Bet é uma aposta simulada de um portfólio
type Bet struct {
	ID           string
	PortfolioID  string
	FixtureID    string
	PredictionID string
	Market       MarketType
	Selection    Selection
	Stake        decimal.Decimal
	Odds         decimal.Decimal
	Status       BetStatus
	Profit       decimal.NullDecimal
	PlacedAt     time.Time
	SettledAt    *time.Time
}

// Portfolio é uma banca simulada com circuit breaker de drawdown
type Portfolio struct {
	ID                      string
	Bankroll                decimal.Decimal
	InitialBankroll         decimal.Decimal
	CircuitBreakerThreshold decimal.Decimal
	Active                  bool
}

// Drawdown = max(0, (inicial - atual) / inicial)
func (p Portfolio) Drawdown() decimal.Decimal {
	if !p.InitialBankroll.IsPositive() {
		return decimal.Zero
	}
	dd := p.InitialBankroll.Sub(p.Bankroll).Div(p.InitialBankroll)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// Settle calcula o status final e o lucro de uma aposta dado o estado da partida.
// Partidas void devolvem a aposta (lucro zero); FINISHED exige placar.
func Settle(b Bet, status FixtureStatus, score *Score) (BetStatus, decimal.Decimal, error) {
	if status.IsVoid() {
		return BetVoid, decimal.Zero, nil
	}
	if status != StatusFinished {
		return BetPending, decimal.Zero, nil
	}
	if score == nil {
		return "", decimal.Zero, ErrSettlementConflict
	}
	won, err := IsCorrect(b.Market, b.Selection, *score)
	if err != nil {
		return "", decimal.Zero, err
	}
	if won {
		return BetWon, b.Stake.Mul(b.Odds).Sub(b.Stake), nil
	}
	return BetLost, b.Stake.Neg(), nil
}
