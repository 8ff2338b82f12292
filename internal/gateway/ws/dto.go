package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// FixtureID ou Topic: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type      string `json:"type"`
	FixtureID string `json:"fixtureId,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// ServerMsg são respostas de controle (pong, subscribed, error)
type ServerMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}
