package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

const MockName = "MockProvider"

// Mock é um provedor determinístico para desenvolvimento local e testes.
// Os dados podem ser alterados com os métodos Set*.
type Mock struct {
	mu       sync.RWMutex
	leagues  []League
	teams    map[string][]Team    // leagueID -> times
	fixtures map[string][]Fixture // leagueID -> jogos
	odds     map[string][]Odds    // fixtureID -> odds
	events   map[string][]Event   // fixtureID -> eventos
	err      error
}

func NewMock() *Mock {
	kickoff := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	return &Mock{
		leagues: []League{
			{ExternalID: "1", Name: "Mock League 1", Country: "Mockland"},
			{ExternalID: "2", Name: "Mock League 2", Country: "Mockland"},
		},
		teams: map[string][]Team{
			"1": {
				{ExternalID: "101", Name: "Mock United", Country: "Mockland"},
				{ExternalID: "102", Name: "Mock City", Country: "Mockland"},
			},
		},
		fixtures: map[string][]Fixture{
			"1": {{
				ExternalID:  "1001",
				LeagueID:    "1",
				HomeTeamID:  "101",
				AwayTeamID:  "102",
				Kickoff:     kickoff,
				StatusShort: "NS",
				Status:      domain.StatusScheduled,
			}},
		},
		odds: map[string][]Odds{
			"1001": {{
				FixtureID: "1001",
				Bookmaker: "MockBookie",
				Market:    "Match Winner",
				Values: []OddsValue{
					{Selection: "Home", Odds: 2.0},
					{Selection: "Draw", Odds: 3.5},
					{Selection: "Away", Odds: 4.0},
				},
			}},
		},
		events: map[string][]Event{
			"1001": {{FixtureID: "1001", Type: "Goal", Detail: "Normal Goal", TeamID: "101", Player: "Mock Striker", Elapsed: 10}},
		},
	}
}

func (m *Mock) Name() string { return MockName }

// SetError faz todas as chamadas falharem (nil restaura)
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SetFixture substitui (ou adiciona) um jogo pelo id externo
func (m *Mock) SetFixture(f Fixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.fixtures[f.LeagueID]
	for i := range list {
		if list[i].ExternalID == f.ExternalID {
			list[i] = f
			return
		}
	}
	m.fixtures[f.LeagueID] = append(list, f)
}

func (m *Mock) SetTeams(leagueID string, teams []Team) {
	m.mu.Lock()
	m.teams[leagueID] = teams
	m.mu.Unlock()
}

func (m *Mock) SetOdds(fixtureID string, odds []Odds) {
	m.mu.Lock()
	m.odds[fixtureID] = odds
	m.mu.Unlock()
}

func (m *Mock) AddEvent(e Event) {
	m.mu.Lock()
	m.events[e.FixtureID] = append(m.events[e.FixtureID], e)
	m.mu.Unlock()
}

func (m *Mock) fail() error {
	if m.err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, m.err)
	}
	return nil
}

func (m *Mock) GetLeagues(context.Context) ([]League, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]League(nil), m.leagues...), nil
}

func (m *Mock) GetTeams(_ context.Context, leagueID string, _ int) ([]Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]Team(nil), m.teams[leagueID]...), nil
}

func (m *Mock) GetFixtures(_ context.Context, leagueID string, _ int) ([]Fixture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]Fixture(nil), m.fixtures[leagueID]...), nil
}

func (m *Mock) GetOdds(_ context.Context, fixtureID string) ([]Odds, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	out := append([]Odds(nil), m.odds[fixtureID]...)
	for i := range out {
		if out[i].UpdatedAt.IsZero() {
			out[i].UpdatedAt = time.Now().UTC()
		}
	}
	return out, nil
}

func (m *Mock) GetEvents(_ context.Context, fixtureID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]Event(nil), m.events[fixtureID]...), nil
}

func (m *Mock) GetStats(context.Context, string) ([]Stat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return []Stat{
		{TeamID: "101", Type: "Ball Possession", Value: "55%"},
		{TeamID: "102", Type: "Ball Possession", Value: "45%"},
	}, nil
}

func (m *Mock) GetLineups(context.Context, string) ([]Lineup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return []Lineup{
		{TeamID: "101", Formation: "4-3-3"},
		{TeamID: "102", Formation: "4-4-2"},
	}, nil
}

func (m *Mock) GetInjuries(context.Context, string) ([]Injury, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return nil, nil
}
