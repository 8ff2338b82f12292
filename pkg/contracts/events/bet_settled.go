package events

import "time"

// Evento emitido no Kafka pelo settlement-worker após liquidar uma aposta.
type BetSettled struct {
	BetID       string    `json:"betId"`
	PortfolioID string    `json:"portfolioId"`
	FixtureID   string    `json:"fixtureId"`
	Status      string    `json:"status"` // "WON" | "LOST" | "VOID"
	Profit      string    `json:"profit"`
	RunID       string    `json:"runId"`
	Ts          time.Time `json:"ts"`
}
