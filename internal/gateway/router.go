package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radieske/sports-prediction-pipeline/internal/gateway/ws"
)

// Router expõe o endpoint WebSocket e um status simples do hub
func Router(hub *ws.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.HandleWS)       // Conexão WebSocket (subscribe por partida)
	r.Get("/v1/status", status(hub)) // Número de clientes conectados
	return r
}

func status(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"clients": hub.Clients()})
	}
}
