package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"stock-forecaster/internal/api"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

// HFClassifier calls a hosted text-classification model (FinBERT by default)
// through the Hugging Face inference API. One request covers a whole batch.
type HFClassifier struct {
	client *api.Client
}

var _ interfaces.Classifier = (*HFClassifier)(nil)

type inferenceRequest struct {
	Inputs  []string         `json:"inputs"`
	Options inferenceOptions `json:"options"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func NewHFClassifier(endpoint, token string, timeout time.Duration) *HFClassifier {
	opts := []api.ClientOption{api.WithBaseURL(endpoint), api.WithTimeout(timeout), api.WithLogging(true)}
	if token != "" {
		opts = append(opts, api.WithHeader("Authorization", "Bearer "+token))
	}
	return &HFClassifier{client: api.NewClient(opts...)}
}

// Open builds the configured classifier and probes it once. A failing probe
// means the classifier could not be loaded.
func Open(ctx context.Context, cfg *store.Config) (*HFClassifier, error) {
	c := NewHFClassifier(cfg.Classifier.Endpoint, os.Getenv(cfg.Classifier.APIKeyEnv),
		time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second)
	if _, err := c.Classify(ctx, []string{"Markets were flat today."}); err != nil {
		return nil, fmt.Errorf("classifier failed to load: %w", err)
	}
	logger.Info(ctx, "Sentiment classifier ready", "endpoint", cfg.Classifier.Endpoint)
	return c, nil
}

func (c *HFClassifier) Classify(ctx context.Context, texts []string) ([]interfaces.Classification, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.DoWithRetry(ctx, api.Request{
		Method: "POST",
		Body:   inferenceRequest{Inputs: texts, Options: inferenceOptions{WaitForModel: true}},
	}, nil)
	if err != nil {
		return nil, err
	}
	out, err := parseClassifications(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: classifier returned %d results for %d inputs", types.ErrUpstream, len(out), len(texts))
	}
	return out, nil
}

// parseClassifications accepts both the flat [{label,score}] shape and the
// nested top-k [[{label,score},...]] shape. For top-k the best score wins.
func parseClassifications(body []byte) ([]interfaces.Classification, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err == nil {
		out := make([]interfaces.Classification, 0, len(nested))
		for i, candidates := range nested {
			if len(candidates) == 0 {
				return nil, fmt.Errorf("%w: classifier returned no labels for input %d", types.ErrUpstream, i)
			}
			best := candidates[0]
			for _, ls := range candidates[1:] {
				if ls.Score > best.Score {
					best = ls
				}
			}
			out = append(out, interfaces.Classification{Label: best.Label, Score: best.Score})
		}
		return out, nil
	}

	var flat []labelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: unexpected classifier response: %v", types.ErrUpstream, err)
	}
	out := make([]interfaces.Classification, len(flat))
	for i, ls := range flat {
		out[i] = interfaces.Classification{Label: ls.Label, Score: ls.Score}
	}
	return out, nil
}
