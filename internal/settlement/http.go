package settlement

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router expõe o disparo manual do sweep e o último relatório
func Router(r *Runner) http.Handler {
	m := chi.NewRouter()
	m.Use(middleware.Recoverer)
	m.Post("/v1/settlement/run", run(r))
	m.Get("/v1/settlement/last", last(r))
	return m
}

func run(r *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := "queued"
		if !r.Trigger() {
			status = "already_queued"
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
	}
}

func last(r *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep, ok := r.LastReport()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sweep yet"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"runId":              rep.RunID,
			"startedAt":          rep.StartedAt,
			"finishedAt":         rep.FinishedAt,
			"fixturesScanned":    rep.FixturesScanned,
			"predictionsSettled": rep.PredictionsSettled,
			"betsSettled":        rep.BetsSettled,
			"failures":           rep.Failures,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
