package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecaster/internal/types"
)

func newServer(t *testing.T, prediction string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/AAPL_lstm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model_version_status":[{"version":"1","state":"AVAILABLE"}]}`)
	})
	mux.HandleFunc("/v1/models/MSFT_lstm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model_version_status":[{"version":"1","state":"LOADING"}]}`)
	})
	mux.HandleFunc("/v1/models/AAPL_lstm:predict", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		assert.Len(t, req.Instances[0], 3)
		fmt.Fprintf(w, `{"predictions": %s}`, prediction)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"Servable not found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistry_OpenAndPredict(t *testing.T) {
	for _, shape := range []string{`[[0.5]]`, `[0.5]`, `[[[0.5]]]`} {
		t.Run(shape, func(t *testing.T) {
			srv := newServer(t, shape)
			reg := NewTFServingRegistry(srv.URL, "", time.Second)

			m, err := reg.Open(context.Background(), types.VariantPrice, "aapl")
			require.NoError(t, err)

			got, err := m.Predict(context.Background(), [][]float64{{0.1}, {0.2}, {0.3}})
			require.NoError(t, err)
			assert.InDelta(t, 0.5, got, 1e-12)
		})
	}
}

func TestRegistry_OpenMissingModel(t *testing.T) {
	reg := NewTFServingRegistry(newServer(t, "[0]").URL, "", time.Second)
	_, err := reg.Open(context.Background(), types.VariantSentiment, "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, err.Error(), "model not found")
}

func TestRegistry_OpenUnavailableModel(t *testing.T) {
	reg := NewTFServingRegistry(newServer(t, "[0]").URL, "", time.Second)
	_, err := reg.Open(context.Background(), types.VariantPrice, "MSFT")
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestRegistry_EmptyPredictions(t *testing.T) {
	srv := newServer(t, `[]`)
	m, err := NewTFServingRegistry(srv.URL, "", time.Second).Open(context.Background(), types.VariantPrice, "AAPL")
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), [][]float64{{1}, {2}, {3}})
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestModelName(t *testing.T) {
	reg := NewTFServingRegistry("http://x", "forecast-{variant}-{symbol}", time.Second)
	assert.Equal(t, "forecast-lstm_senti-TSLA", reg.ModelName(types.VariantSentiment, "tsla"))
}
