package provider

import (
	"context"
	"time"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

// Provider é a fonte externa de dados esportivos. Todos os ids são do provedor.
type Provider interface {
	Name() string
	GetLeagues(ctx context.Context) ([]League, error)
	GetTeams(ctx context.Context, leagueID string, season int) ([]Team, error)
	GetFixtures(ctx context.Context, leagueID string, season int) ([]Fixture, error)
	GetOdds(ctx context.Context, fixtureID string) ([]Odds, error)
	GetEvents(ctx context.Context, fixtureID string) ([]Event, error)
	GetStats(ctx context.Context, fixtureID string) ([]Stat, error)
	GetLineups(ctx context.Context, fixtureID string) ([]Lineup, error)
	GetInjuries(ctx context.Context, fixtureID string) ([]Injury, error)
}

type League struct {
	ExternalID string
	Name       string
	Country    string
	Logo       string
}

type Team struct {
	ExternalID string
	Name       string
	Country    string
	Logo       string
}

type Fixture struct {
	ExternalID  string
	LeagueID    string
	HomeTeamID  string
	AwayTeamID  string
	Kickoff     time.Time
	StatusShort string
	Status      domain.FixtureStatus
	Elapsed     int
	HomeGoals   *int
	AwayGoals   *int
}

// Score devolve o placar quando ambos os gols são conhecidos
func (f Fixture) Score() *domain.Score {
	if f.HomeGoals == nil || f.AwayGoals == nil {
		return nil
	}
	return &domain.Score{Home: *f.HomeGoals, Away: *f.AwayGoals}
}

type DepthLevel struct {
	Price  float64
	Volume float64
}

type OddsValue struct {
	Selection string
	Odds      float64
	Depth     []DepthLevel
}

// Odds de um bookmaker para um mercado
type Odds struct {
	FixtureID string
	Bookmaker string
	Market    string
	Values    []OddsValue
	UpdatedAt time.Time
}

type Event struct {
	FixtureID string
	Type      string // Goal, Card, subst, Var
	Detail    string
	TeamID    string
	Player    string
	Elapsed   int
	Extra     int
	Comments  string
}

type Stat struct {
	TeamID string
	Type   string
	Value  string
}

type Player struct {
	ExternalID string
	Name       string
	Number     int
	Position   string
}

type Lineup struct {
	TeamID      string
	Formation   string
	StartXI     []Player
	Substitutes []Player
}

type Injury struct {
	TeamID string
	Player string
	Type   string
	Reason string
}
