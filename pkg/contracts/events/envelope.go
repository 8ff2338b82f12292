package events

import "encoding/json"

const (
	EventPredictionUpdate = "prediction:update"
	EventSignalNew        = "signal:new"
)

// Envelope é o payload padrão do fan-out para o gateway WS
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
