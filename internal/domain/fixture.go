package domain

import (
	"strings"
	"time"
)

type EntityType string

const (
	EntityLeague  EntityType = "LEAGUE"
	EntityTeam    EntityType = "TEAM"
	EntityFixture EntityType = "FIXTURE"
)

type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "SCHEDULED"
	StatusLive      FixtureStatus = "LIVE"
	StatusFinished  FixtureStatus = "FINISHED"
	StatusCancelled FixtureStatus = "CANCELLED"
	StatusPostponed FixtureStatus = "POSTPONED"
	StatusAbandoned FixtureStatus = "ABANDONED"
)

// IsVoid indica partidas que não terão resultado: apostas são devolvidas
func (s FixtureStatus) IsVoid() bool {
	return s == StatusCancelled || s == StatusPostponed || s == StatusAbandoned
}

// IsTerminal indica que nenhuma nova aposta pode ser aceita
func (s FixtureStatus) IsTerminal() bool {
	return s == StatusFinished || s.IsVoid()
}

// ParseProviderStatus converte o código curto do provedor (NS, 1H, FT...) para o status interno
func ParseProviderStatus(short string) (FixtureStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(short)) {
	case "TBD", "NS", "SCHEDULED":
		return StatusScheduled, true
	case "1H", "HT", "2H", "ET", "BT", "P", "LIVE", "INT", "SUSP":
		return StatusLive, true
	case "FT", "AET", "PEN", "FINISHED":
		return StatusFinished, true
	case "CANC", "CANCELLED":
		return StatusCancelled, true
	case "PST", "POSTP", "POSTPONED":
		return StatusPostponed, true
	case "ABD", "AWD", "WO", "ABANDONED":
		return StatusAbandoned, true
	}
	return "", false
}

// Score é o placar final; ausente enquanto a partida não termina
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type League struct {
	ID      string
	Name    string
	Country string
}

type Team struct {
	ID   string
	Name string
	Logo string
}

type Fixture struct {
	ID         string
	LeagueID   string
	HomeTeamID string
	AwayTeamID string
	Kickoff    time.Time
	Status     FixtureStatus
	Score      *Score
}
