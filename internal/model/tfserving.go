package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"stock-forecaster/internal/api"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/types"
)

// TFServingRegistry resolves pre-trained models hosted by a TensorFlow
// Serving REST endpoint. Models are read-only; training happens elsewhere.
type TFServingRegistry struct {
	client       *api.Client
	nameTemplate string
}

var _ interfaces.ModelRegistry = (*TFServingRegistry)(nil)

func NewTFServingRegistry(baseURL, nameTemplate string, timeout time.Duration) *TFServingRegistry {
	if nameTemplate == "" {
		nameTemplate = "{symbol}_{variant}"
	}
	return &TFServingRegistry{
		client:       api.NewClient(api.WithBaseURL(strings.TrimRight(baseURL, "/")), api.WithTimeout(timeout)),
		nameTemplate: nameTemplate,
	}
}

// ModelName expands the name template for a symbol and variant.
func (r *TFServingRegistry) ModelName(variant types.Variant, symbol string) string {
	return strings.NewReplacer("{symbol}", strings.ToUpper(symbol), "{variant}", string(variant)).Replace(r.nameTemplate)
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

func (r *TFServingRegistry) Open(ctx context.Context, variant types.Variant, symbol string) (interfaces.Model, error) {
	name := r.ModelName(variant, symbol)
	var st modelStatus
	if err := r.client.GetJSON(ctx, "/v1/models/"+url.PathEscape(name), nil, &st); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: model not found for %s (%s)", types.ErrNotFound, strings.ToUpper(symbol), variant)
		}
		return nil, err
	}
	for _, v := range st.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return &servedModel{client: r.client, name: name}, nil
		}
	}
	return nil, fmt.Errorf("%w: model %s has no available version", types.ErrUpstream, name)
}

type servedModel struct {
	client *api.Client
	name   string
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// Predict sends one [time_steps][features] instance and returns the scalar output.
func (m *servedModel) Predict(ctx context.Context, window [][]float64) (float64, error) {
	var resp predictResponse
	if err := m.client.PostJSON(ctx, "/v1/models/"+url.PathEscape(m.name)+":predict",
		predictRequest{Instances: [][][]float64{window}}, &resp); err != nil {
		return 0, err
	}
	if len(resp.Predictions) == 0 {
		return 0, fmt.Errorf("%w: model %s returned no predictions", types.ErrUpstream, m.name)
	}
	v, err := firstScalar(resp.Predictions[0])
	if err != nil {
		return 0, fmt.Errorf("%w: model %s: %v", types.ErrUpstream, m.name, err)
	}
	return v, nil
}

// firstScalar unwraps 0.5, [0.5] or [[0.5]].
func firstScalar(raw json.RawMessage) (float64, error) {
	for depth := 0; depth < 4; depth++ {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, nil
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
			return 0, fmt.Errorf("unexpected prediction %s", string(raw))
		}
		raw = arr[0]
	}
	return 0, fmt.Errorf("prediction nested too deeply")
}
