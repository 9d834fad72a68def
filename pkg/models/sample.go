package models

import "time"

// OpKind identifies a model operation.
type OpKind string

const (
	OpEmbed       OpKind = "embed"
	OpDecode      OpKind = "decode"
	OpFindSimilar OpKind = "find_similar"
	OpInterpolate OpKind = "interpolate"
)

// SampleRequest describes a single model call. It is immutable once built;
// every field participates in the cache fingerprint, including NumRequested
// and Seed so that distinct sampling runs never collide.
type SampleRequest struct {
	Model        string    `json:"model"`
	Op           OpKind    `json:"op"`
	Smiles       []string  `json:"smiles,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
	EmbeddingDim []int     `json:"embedding_dim,omitempty"`
	PadMask      []bool    `json:"pad_mask,omitempty"`
	NumRequested int       `json:"num_requested"`
	Radius       float64   `json:"radius"`
	Padding      int       `json:"padding"`
	ForceUnique  bool      `json:"force_unique"`
	Sanitize     bool      `json:"sanitize"`
	Seed         int64     `json:"seed"`
}

// SampleResult is the model output for one SampleRequest. Results are
// written once per fingerprint and never mutated afterwards.
type SampleResult struct {
	Fingerprint  string    `json:"fingerprint"`
	Model        string    `json:"model"`
	Op           OpKind    `json:"op"`
	Smiles       []string  `json:"smiles,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
	EmbeddingDim []int     `json:"embedding_dim,omitempty"`
	PadMask      []bool    `json:"pad_mask,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
