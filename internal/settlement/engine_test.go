package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
)

type fakeStore struct {
	mu         sync.Mutex
	fixtures   map[string]Candidate
	preds      map[string]*domain.Prediction
	bets       map[string]*domain.Bet
	bankroll   map[string]decimal.Decimal
	failBetsOn string
	runs       []Report
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fixtures: map[string]Candidate{},
		preds:    map[string]*domain.Prediction{},
		bets:     map[string]*domain.Bet{},
		bankroll: map[string]decimal.Decimal{"pf-1": decimal.NewFromInt(1000)},
	}
}

func (s *fakeStore) StartRun(context.Context, string, time.Time) error { return nil }

func (s *fakeStore) FinishRun(_ context.Context, r Report) error {
	s.runs = append(s.runs, r)
	return nil
}

func (s *fakeStore) Candidates(context.Context) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Candidate
	for _, id := range []string{"fx-a", "fx-b", "fx-c", "fx-d"} {
		c, ok := s.fixtures[id]
		if !ok || !c.Status.IsTerminal() {
			continue
		}
		pending := false
		for _, p := range s.preds {
			if p.FixtureID == id && p.IsCorrect == nil && c.Status == domain.StatusFinished {
				pending = true
			}
		}
		for _, b := range s.bets {
			if b.FixtureID == id && b.Status == domain.BetPending {
				pending = true
			}
		}
		if pending {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) UnsettledPredictions(_ context.Context, fixtureID string) ([]domain.Prediction, error) {
	var out []domain.Prediction
	for _, p := range s.preds {
		if p.FixtureID == fixtureID && p.IsCorrect == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPrediction(_ context.Context, id string, correct bool) (bool, error) {
	p := s.preds[id]
	if p.IsCorrect != nil {
		return false, nil
	}
	p.IsCorrect = &correct
	return true, nil
}

func (s *fakeStore) PendingBets(_ context.Context, fixtureID string) ([]domain.Bet, error) {
	if fixtureID == s.failBetsOn {
		return nil, errors.New("connection reset")
	}
	var out []domain.Bet
	for _, b := range s.bets {
		if b.FixtureID == fixtureID && b.Status == domain.BetPending {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) SettleBet(_ context.Context, st BetSettlement) (string, bool, error) {
	b := s.bets[st.BetID]
	if b.Status != domain.BetPending {
		return "", false, nil
	}
	b.Status = st.Status
	b.Profit = decimal.NewNullDecimal(st.Profit)
	s.bankroll[b.PortfolioID] = s.bankroll[b.PortfolioID].Add(st.Profit)
	return b.PortfolioID, true, nil
}

type recNotifier struct{ got []events.BetSettled }

func (n *recNotifier) BetSettled(_ context.Context, e events.BetSettled) error {
	n.got = append(n.got, e)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bet(id, fixture string, m domain.MarketType, sel domain.Selection, stake, odds string) *domain.Bet {
	return &domain.Bet{
		ID: id, PortfolioID: "pf-1", FixtureID: fixture,
		Market: m, Selection: sel, Stake: d(stake), Odds: d(odds), Status: domain.BetPending,
	}
}

func pred(id, fixture string, m domain.MarketType, sel domain.Selection) *domain.Prediction {
	return &domain.Prediction{ID: id, FixtureID: fixture, Market: m, Selection: sel, Probability: 0.5}
}

func finished(id string, home, away int) Candidate {
	return Candidate{FixtureID: id, Status: domain.StatusFinished, Score: &domain.Score{Home: home, Away: away}}
}

func TestSweep_SettlesAndConservesBankroll(t *testing.T) {
	s := newFakeStore()
	s.fixtures["fx-a"] = finished("fx-a", 2, 1)
	s.preds["p1"] = pred("p1", "fx-a", domain.Market1X2, domain.SelHome)
	s.preds["p2"] = pred("p2", "fx-a", domain.MarketOverUnder25, domain.SelOver)
	s.preds["p3"] = pred("p3", "fx-a", domain.MarketBothTeamsScore, domain.SelNo)
	s.bets["b1"] = bet("b1", "fx-a", domain.Market1X2, domain.SelHome, "100", "2.50")
	s.bets["b2"] = bet("b2", "fx-a", domain.Market1X2, domain.SelAway, "40", "4.00")

	n := &recNotifier{}
	e := NewEngine(s, n, zap.NewNop())
	rep, err := e.Sweep(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1, rep.FixturesScanned)
	assert.Equal(t, 3, rep.PredictionsSettled)
	assert.Equal(t, 2, rep.BetsSettled)
	assert.Zero(t, rep.Failures)

	assert.True(t, *s.preds["p1"].IsCorrect)
	assert.True(t, *s.preds["p2"].IsCorrect) // 3 gols > 2.5
	assert.False(t, *s.preds["p3"].IsCorrect)

	assert.Equal(t, domain.BetWon, s.bets["b1"].Status)
	assert.True(t, s.bets["b1"].Profit.Decimal.Equal(d("150")))
	assert.Equal(t, domain.BetLost, s.bets["b2"].Status)
	assert.True(t, s.bets["b2"].Profit.Decimal.Equal(d("-40")))

	// banca final = inicial + soma dos lucros
	assert.True(t, s.bankroll["pf-1"].Equal(d("1110")), s.bankroll["pf-1"].String())

	require.Len(t, n.got, 2)
	for _, ev := range n.got {
		assert.Equal(t, rep.RunID, ev.RunID)
		assert.Equal(t, "pf-1", ev.PortfolioID)
	}
}

func TestSweep_SecondRunIsNoop(t *testing.T) {
	s := newFakeStore()
	s.fixtures["fx-a"] = finished("fx-a", 0, 0)
	s.preds["p1"] = pred("p1", "fx-a", domain.Market1X2, domain.SelDraw)
	s.bets["b1"] = bet("b1", "fx-a", domain.Market1X2, domain.SelDraw, "50", "3.20")

	e := NewEngine(s, nil, zap.NewNop())
	_, err := e.Sweep(context.Background())
	require.NoError(t, err)
	bankroll := s.bankroll["pf-1"]

	rep, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.FixturesScanned)
	assert.Zero(t, rep.BetsSettled)
	assert.True(t, s.bankroll["pf-1"].Equal(bankroll))
	assert.True(t, bankroll.Equal(d("1110")))
}

func TestSweep_VoidFixtureRefundsAndLeavesPredictions(t *testing.T) {
	s := newFakeStore()
	s.fixtures["fx-b"] = Candidate{FixtureID: "fx-b", Status: domain.StatusPostponed}
	s.preds["p1"] = pred("p1", "fx-b", domain.Market1X2, domain.SelHome)
	s.bets["b1"] = bet("b1", "fx-b", domain.Market1X2, domain.SelHome, "100", "2.00")

	rep, err := NewEngine(s, nil, zap.NewNop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.BetsSettled)
	assert.Zero(t, rep.PredictionsSettled)

	assert.Equal(t, domain.BetVoid, s.bets["b1"].Status)
	assert.True(t, s.bets["b1"].Profit.Decimal.IsZero())
	assert.Nil(t, s.preds["p1"].IsCorrect)
	assert.True(t, s.bankroll["pf-1"].Equal(d("1000")))
}

func TestSweep_FixtureFailureIsIsolated(t *testing.T) {
	s := newFakeStore()
	s.fixtures["fx-a"] = finished("fx-a", 1, 0)
	s.fixtures["fx-b"] = finished("fx-b", 1, 0)
	s.fixtures["fx-c"] = Candidate{FixtureID: "fx-c", Status: domain.StatusFinished} // sem placar
	s.bets["b1"] = bet("b1", "fx-a", domain.Market1X2, domain.SelHome, "10", "2.00")
	s.bets["b2"] = bet("b2", "fx-b", domain.Market1X2, domain.SelHome, "10", "2.00")
	s.bets["b3"] = bet("b3", "fx-c", domain.Market1X2, domain.SelHome, "10", "2.00")
	s.failBetsOn = "fx-a"

	rep, err := NewEngine(s, nil, zap.NewNop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.FixturesScanned)
	assert.Equal(t, 2, rep.Failures)
	assert.Equal(t, 1, rep.BetsSettled)

	assert.Equal(t, domain.BetPending, s.bets["b1"].Status)
	assert.Equal(t, domain.BetWon, s.bets["b2"].Status)
	assert.Equal(t, domain.BetPending, s.bets["b3"].Status)
	require.Len(t, s.runs, 1)
	assert.Equal(t, rep, s.runs[0])
}
