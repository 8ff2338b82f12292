package domain

import (
	"math"
	"time"
)

const DefaultModelVersion = "v1.0.0-stable"

// Prediction é a probabilidade estimada para uma seleção de um mercado
type Prediction struct {
	ID           string
	FixtureID    string
	Market       MarketType
	Selection    Selection
	Probability  float64
	FairOdds     float64
	MarketOdds   *float64
	EV           *float64
	ModelVersion string
	IsCorrect    *bool
	CreatedAt    time.Time
}

// FairOdds = 1/p
func FairOdds(p float64) float64 {
	if p <= 0 {
		return math.Inf(1)
	}
	return 1 / p
}

// EV esperado por unidade apostada: p*odds - 1
func EV(p, odds float64) float64 { return p*odds - 1 }

// KellyFraction devolve a fração da banca pelo critério de Kelly fracionado,
// limitada a maxFraction. Zero quando não há vantagem.
func KellyFraction(p, odds, frac, maxFraction float64) float64 {
	if odds <= 1 || p <= 0 || p >= 1 {
		return 0
	}
	full := (p*odds - 1) / (odds - 1)
	if full <= 0 {
		return 0
	}
	f := full * frac
	if maxFraction > 0 && f > maxFraction {
		f = maxFraction
	}
	return f
}
