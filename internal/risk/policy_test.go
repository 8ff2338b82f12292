package risk

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

type memStore struct {
	portfolios map[string]*domain.Portfolio
	exposure   decimal.Decimal
}

func (m *memStore) Portfolio(_ context.Context, id string) (domain.Portfolio, error) {
	p, ok := m.portfolios[id]
	if !ok {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return *p, nil
}

func (m *memStore) PendingExposure(context.Context, string) (decimal.Decimal, error) {
	return m.exposure, nil
}

func (m *memStore) Deactivate(_ context.Context, id string) error {
	m.portfolios[id].Active = false
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func portfolio(bankroll string) *domain.Portfolio {
	return &domain.Portfolio{
		ID:                      "pf-1",
		Bankroll:                dec(bankroll),
		InitialBankroll:         dec("10000"),
		CircuitBreakerThreshold: dec("0.25"),
		Active:                  true,
	}
}

func TestCheckEligibility_CircuitBreakerDeactivates(t *testing.T) {
	store := &memStore{portfolios: map[string]*domain.Portfolio{"pf-1": portfolio("7000")}}
	p := NewPolicy(store, zap.NewNop(), 0.05)

	d, err := p.CheckEligibility(context.Background(), "pf-1", dec("0.01"))
	require.NoError(t, err)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonCircuitBreaker, d.Reason)
	assert.True(t, d.Drawdown.Equal(dec("0.3")))
	assert.False(t, store.portfolios["pf-1"].Active)

	// depois de desativado, continua inelegível mesmo sem novo drawdown
	store.portfolios["pf-1"].Bankroll = dec("10000")
	d, err = p.CheckEligibility(context.Background(), "pf-1", dec("0.01"))
	require.NoError(t, err)
	assert.Equal(t, ReasonPortfolioInactive, d.Reason)
}

func TestCheckEligibility_ExposureLimit(t *testing.T) {
	store := &memStore{
		portfolios: map[string]*domain.Portfolio{"pf-1": portfolio("10000")},
		exposure:   dec("400"),
	}
	p := NewPolicy(store, zap.NewNop(), 0.05)

	// 400 + 0.02*10000 = 600 > 500
	d, err := p.CheckEligibility(context.Background(), "pf-1", dec("0.02"))
	require.NoError(t, err)
	assert.Equal(t, ReasonExposureLimit, d.Reason)
	assert.True(t, d.Exposure.Equal(dec("600")))

	// 400 + 0.01*10000 = 500, no limite: elegível
	d, err = p.CheckEligibility(context.Background(), "pf-1", dec("0.01"))
	require.NoError(t, err)
	assert.True(t, d.Eligible)
	assert.Equal(t, ReasonNone, d.Reason)
	assert.True(t, d.Limit.Equal(dec("0.05")))
}

func TestCheckEligibility_UnknownPortfolio(t *testing.T) {
	p := NewPolicy(&memStore{portfolios: map[string]*domain.Portfolio{}}, zap.NewNop(), 0)
	d, err := p.CheckEligibility(context.Background(), "missing", dec("0.01"))
	require.NoError(t, err)
	assert.Equal(t, ReasonPortfolioInactive, d.Reason)
}

func TestPostgresStore_PortfolioScansDecimals(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT bankroll, initial_bankroll`).WithArgs("pf-1").
		WillReturnRows(sqlmock.NewRows([]string{"bankroll", "initial_bankroll", "circuit_breaker_threshold", "is_active"}).
			AddRow("7000.00", "10000.00", "0.2500", true))

	p, err := NewPostgresStore(db).Portfolio(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.True(t, p.Bankroll.Equal(dec("7000")))
	assert.True(t, p.CircuitBreakerThreshold.Equal(dec("0.25")))
	assert.True(t, p.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
