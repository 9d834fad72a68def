package models

import "time"

// MetricResult is one scored metric variant. A sweep over radii, top-k
// values, or properties yields one result per value.
type MetricResult struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	RunID      string    `json:"run_id"`
	Value      float64   `json:"value"`
	Radius     float64   `json:"radius,omitempty"`
	TopK       int       `json:"top_k,omitempty"`
	Property   string    `json:"property,omitempty"`
	NumSamples int       `json:"num_samples,omitempty"`
	DataSize   int       `json:"data_size"`
	Excluded   int       `json:"excluded"`
	RunTime    float64   `json:"run_time"`
	Timestamp  time.Time `json:"timestamp"`

	// Modelability detail: held-out error of each feature space and the
	// fingerprint/embedding error ratio carried in Value.
	FingerprintError float64 `json:"fingerprint_error,omitempty"`
	EmbeddingError   float64 `json:"embedding_error,omitempty"`

	// Predictions and FingerprintPredictions hold full-data predictions
	// from each feature space when requested.
	Predictions            []float64 `json:"predictions,omitempty"`
	FingerprintPredictions []float64 `json:"fingerprint_predictions,omitempty"`

	// Error records a per-metric failure. A failed metric still produces
	// a result row so no variant disappears silently.
	Error string `json:"error,omitempty"`
}

// Failed reports whether this variant errored instead of scoring.
func (r MetricResult) Failed() bool { return r.Error != "" }
