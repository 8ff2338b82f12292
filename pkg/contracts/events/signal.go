package events

import "time"

// Signal é uma oportunidade de valor detectada pelo worker de previsões
type Signal struct {
	Market        string  `json:"market"`
	Selection     string  `json:"selection"`
	Probability   float64 `json:"probability"`
	Odds          float64 `json:"odds"`
	EV            float64 `json:"ev"`
	StakeFraction float64 `json:"stakeFraction"`
	ModelVersion  string  `json:"modelVersion"`
}

// Execution é o resultado da tentativa de execução de um sinal
type Execution struct {
	Status string `json:"status"` // PLACED | REJECTED | SKIPPED
	Reason string `json:"reason,omitempty"`
	BetID  string `json:"betId,omitempty"`
	Stake  string `json:"stake,omitempty"`
}

// LiveSignal é publicado em "live_signals"
type LiveSignal struct {
	FixtureID string    `json:"fixtureId"`
	Signal    Signal    `json:"signal"`
	Execution Execution `json:"execution"`
	Timestamp time.Time `json:"timestamp"`
}

func (s LiveSignal) ToFields() Fields {
	f := Fields{
		"fixtureId": s.FixtureID,
		"signal":    mustJSON(s.Signal),
		"execution": mustJSON(s.Execution),
	}
	if !s.Timestamp.IsZero() {
		f["timestamp"] = Millis(s.Timestamp)
	}
	return f
}

func ParseLiveSignal(f Fields) (LiveSignal, error) {
	var s LiveSignal
	var err error
	if s.FixtureID, err = str(f, "fixtureId"); err != nil {
		return s, err
	}
	if err = jsonField(f, "signal", &s.Signal); err != nil {
		return s, err
	}
	if err = jsonField(f, "execution", &s.Execution); err != nil {
		return s, err
	}
	if _, ok := f["timestamp"]; ok {
		if s.Timestamp, err = parseMillis(f, "timestamp"); err != nil {
			return s, err
		}
	}
	return s, nil
}
