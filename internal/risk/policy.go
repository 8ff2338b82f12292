package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonPortfolioInactive Reason = "PORTFOLIO_INACTIVE"
	ReasonCircuitBreaker    Reason = "CIRCUIT_BREAKER"
	ReasonExposureLimit     Reason = "EXPOSURE_LIMIT"
)

// Decision é o resultado da verificação de elegibilidade
type Decision struct {
	Eligible bool
	Reason   Reason
	Drawdown decimal.Decimal
	Exposure decimal.Decimal
	Limit    decimal.Decimal // fração da banca aplicada de novo na gravação
}

// Store dá acesso ao portfólio e à exposição em aberto
type Store interface {
	Portfolio(ctx context.Context, id string) (domain.Portfolio, error)
	// PendingExposure soma os stakes das apostas PENDING do portfólio
	PendingExposure(ctx context.Context, portfolioID string) (decimal.Decimal, error)
	Deactivate(ctx context.Context, portfolioID string) error
}

// Policy aplica o circuit breaker de drawdown e o limite de exposição
type Policy struct {
	Store         Store
	Log           *zap.Logger
	ExposureLimit decimal.Decimal // fração da banca (padrão 0.05)
}

func NewPolicy(store Store, log *zap.Logger, exposureLimit float64) *Policy {
	if exposureLimit <= 0 {
		exposureLimit = 0.05
	}
	return &Policy{Store: store, Log: log, ExposureLimit: decimal.NewFromFloat(exposureLimit)}
}

// CheckEligibility decide se o portfólio pode receber uma nova aposta de
// stakeFraction da banca. Atingir o drawdown máximo desativa o portfólio.
// Não há reativação automática: um portfólio desativado volta só por auditoria manual.
func (p *Policy) CheckEligibility(ctx context.Context, portfolioID string, stakeFraction decimal.Decimal) (Decision, error) {
	pf, err := p.Store.Portfolio(ctx, portfolioID)
	if errors.Is(err, domain.ErrNotFound) {
		return Decision{Reason: ReasonPortfolioInactive}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load portfolio: %w", err)
	}
	if !pf.Active {
		return Decision{Reason: ReasonPortfolioInactive}, nil
	}

	dd := pf.Drawdown()
	if dd.GreaterThanOrEqual(pf.CircuitBreakerThreshold) {
		if err := p.Store.Deactivate(ctx, portfolioID); err != nil {
			return Decision{}, fmt.Errorf("deactivate portfolio: %w", err)
		}
		p.Log.Warn("circuit breaker tripped, portfolio deactivated",
			zap.String("portfolio_id", portfolioID),
			zap.String("drawdown", dd.String()),
			zap.String("threshold", pf.CircuitBreakerThreshold.String()),
		)
		return Decision{Reason: ReasonCircuitBreaker, Drawdown: dd}, nil
	}

	current, err := p.Store.PendingExposure(ctx, portfolioID)
	if err != nil {
		return Decision{}, fmt.Errorf("pending exposure: %w", err)
	}
	exposure := current.Add(pf.Bankroll.Mul(stakeFraction))
	if exposure.GreaterThan(pf.Bankroll.Mul(p.ExposureLimit)) {
		return Decision{Reason: ReasonExposureLimit, Drawdown: dd, Exposure: exposure, Limit: p.ExposureLimit}, nil
	}

	return Decision{Eligible: true, Drawdown: dd, Exposure: exposure, Limit: p.ExposureLimit}, nil
}
