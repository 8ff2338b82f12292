package events

import "time"

// PredictionTask pede a geração de previsões para uma partida
type PredictionTask struct {
	FixtureID string `json:"fixtureId"`
}

func (t PredictionTask) ToFields() Fields {
	return Fields{"fixtureId": t.FixtureID}
}

func ParsePredictionTask(f Fields) (PredictionTask, error) {
	id, err := str(f, "fixtureId")
	return PredictionTask{FixtureID: id}, err
}

// Probs: mercado -> seleção -> probabilidade
type Probs map[string]map[string]float64

// PredictionUpdate é publicado em "live_predictions"
// (fixtureId, timestamp) identifica a atualização para assinantes idempotentes
type PredictionUpdate struct {
	FixtureID    string    `json:"fixtureId"`
	Probs        Probs     `json:"probs"`
	ModelVersion string    `json:"modelVersion,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (p PredictionUpdate) ToFields() Fields {
	f := Fields{
		"fixtureId":    p.FixtureID,
		"probs":        mustJSON(p.Probs),
		"modelVersion": p.ModelVersion,
	}
	if !p.Timestamp.IsZero() {
		f["timestamp"] = Millis(p.Timestamp)
	}
	return f
}

func ParsePredictionUpdate(f Fields) (PredictionUpdate, error) {
	var p PredictionUpdate
	var err error
	if p.FixtureID, err = str(f, "fixtureId"); err != nil {
		return p, err
	}
	if err = jsonField(f, "probs", &p.Probs); err != nil {
		return p, err
	}
	p.ModelVersion = optStr(f, "modelVersion")
	if _, ok := f["timestamp"]; ok {
		if p.Timestamp, err = parseMillis(f, "timestamp"); err != nil {
			return p, err
		}
	}
	return p, nil
}
