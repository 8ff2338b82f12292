package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-prediction-pipeline/internal/domain"
)

func TestOracleClient_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Mock United", req.HomeTeam)
		assert.Equal(t, "Mock City", req.AwayTeam)
		_, _ = w.Write([]byte(`{"markets":{"1X2":{"HOME":0.5,"DRAW":0.3,"AWAY":0.2}},"snapshot":{"model_type":"Dixon-Coles"}}`))
	}))
	defer srv.Close()

	resp, err := NewOracleClient(srv.URL, time.Second).Predict(context.Background(), "Mock United", "Mock City")
	require.NoError(t, err)
	assert.Equal(t, "Dixon-Coles", resp.ModelVersion())
	assert.InDelta(t, 0.5, resp.markets()["1X2"]["HOME"], 1e-9)
}

func TestOracleClient_LegacyResponseIsMatchWinner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"home_win":0.45,"draw":0.3,"away_win":0.25,"snapshot":{}}`))
	}))
	defer srv.Close()

	resp, err := NewOracleClient(srv.URL, time.Second).Predict(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultModelVersion, resp.ModelVersion())
	assert.Equal(t, map[string]float64{"HOME": 0.45, "DRAW": 0.3, "AWAY": 0.25}, resp.markets()["1X2"])
}

func TestOracleClient_FailureIsOracleUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not trained", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOracleClient(srv.URL, time.Second).Predict(context.Background(), "a", "b")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)

	_, err = NewOracleClient("http://127.0.0.1:1", time.Second).Predict(context.Background(), "a", "b")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}
