package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

// OracleClient chama o serviço de scoring (POST /predict)
type OracleClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewOracleClient(baseURL string, timeout time.Duration) *OracleClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OracleClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

type predictRequest struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
}

// OracleResponse traz probabilidades por mercado. Versões antigas do serviço
// só respondem home_win/draw/away_win, tratados como 1X2.
type OracleResponse struct {
	Markets  map[string]map[string]float64 `json:"markets"`
	HomeWin  *float64                      `json:"home_win,omitempty"`
	Draw     *float64                      `json:"draw,omitempty"`
	AwayWin  *float64                      `json:"away_win,omitempty"`
	Snapshot struct {
		ModelType string `json:"model_type"`
	} `json:"snapshot"`
}

// ModelVersion usa snapshot.model_type ou a versão padrão
func (r OracleResponse) ModelVersion() string {
	if r.Snapshot.ModelType != "" {
		return r.Snapshot.ModelType
	}
	return domain.DefaultModelVersion
}

func (r OracleResponse) markets() map[string]map[string]float64 {
	if len(r.Markets) > 0 {
		return r.Markets
	}
	if r.HomeWin == nil || r.Draw == nil || r.AwayWin == nil {
		return nil
	}
	return map[string]map[string]float64{
		string(domain.Market1X2): {"HOME": *r.HomeWin, "DRAW": *r.Draw, "AWAY": *r.AwayWin},
	}
}

// Predict: qualquer falha (rede, status, corpo inválido) vira ErrOracleUnavailable
func (c *OracleClient) Predict(ctx context.Context, home, away string) (OracleResponse, error) {
	var out OracleResponse
	body, _ := json.Marshal(predictRequest{HomeTeam: home, AwayTeam: away})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("%w: status %d: %s", domain.ErrOracleUnavailable, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("%w: decode: %v", domain.ErrOracleUnavailable, err)
	}
	return out, nil
}
