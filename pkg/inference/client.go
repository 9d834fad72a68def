package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a remotely hosted generative model over HTTP. It is the
// network-transport realization of Model: the service is typically a
// separately scaled container in front of the actual GPU inference.
type Client struct {
	name        string
	base        *url.URL
	radiusScale float64
	http        *http.Client
}

// NewClient creates a Client for the model service at baseURL. radiusScale
// divides caller radii before they are sent, matching the model's internal
// jitter scaling; pass 1 when the model takes radii as-is.
func NewClient(name, baseURL string, radiusScale float64) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid model URL: %w", err)
	}
	if radiusScale <= 0 {
		radiusScale = 1
	}
	return &Client{
		name:        name,
		base:        base,
		radiusScale: radiusScale,
		http:        &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Name implements Model.
func (c *Client) Name() string { return c.name }

// Ready implements Model with a single health probe.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("/health").String(), nil)
	if err != nil {
		return Transient(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Transient(fmt.Errorf("health returned %d", resp.StatusCode))
	}
	return nil
}

type embeddingRequest struct {
	Smiles       string  `json:"smiles"`
	Padding      int     `json:"padding"`
	Radius       float64 `json:"radius"`
	NumRequested int     `json:"num_requested"`
	Sanitize     bool    `json:"sanitize"`
}

type decodeRequest struct {
	Embedding Embedding `json:"embedding"`
}

type generateRequest struct {
	Smiles       []string `json:"smiles"`
	NumRequested int      `json:"num_requested"`
	Radius       float64  `json:"radius"`
	ForceUnique  bool     `json:"force_unique"`
	Sanitize     bool     `json:"sanitize"`
}

type generateResponse struct {
	GeneratedSmiles []string `json:"generated_smiles"`
}

// SmilesToEmbedding implements Model.
func (c *Client) SmilesToEmbedding(ctx context.Context, smiles string, padding int, radius float64, numRequested int, sanitize bool) (Embedding, error) {
	var out Embedding
	err := c.post(ctx, "/embedding", embeddingRequest{
		Smiles:       smiles,
		Padding:      padding,
		Radius:       radius / c.radiusScale,
		NumRequested: numRequested,
		Sanitize:     sanitize,
	}, &out)
	return out, err
}

// EmbeddingToSmiles implements Model.
func (c *Client) EmbeddingToSmiles(ctx context.Context, emb Embedding) ([]string, error) {
	var out generateResponse
	if err := c.post(ctx, "/decode", decodeRequest{Embedding: emb}, &out); err != nil {
		return nil, err
	}
	return out.GeneratedSmiles, nil
}

// FindSimilarsSmiles implements Model.
func (c *Client) FindSimilarsSmiles(ctx context.Context, smiles string, numRequested int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	var out generateResponse
	err := c.post(ctx, "/similars", generateRequest{
		Smiles:       []string{smiles},
		NumRequested: numRequested,
		Radius:       radius / c.radiusScale,
		ForceUnique:  forceUnique,
		Sanitize:     sanitize,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.GeneratedSmiles, nil
}

// InterpolateSmiles implements Model.
func (c *Client) InterpolateSmiles(ctx context.Context, smiles []string, numPoints int, radius float64, forceUnique, sanitize bool) ([]string, error) {
	var out generateResponse
	err := c.post(ctx, "/interpolate", generateRequest{
		Smiles:       smiles,
		NumRequested: numPoints,
		Radius:       radius / c.radiusScale,
		ForceUnique:  forceUnique,
		Sanitize:     sanitize,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.GeneratedSmiles, nil
}

// post sends a JSON request and decodes the JSON response. A 4xx status is
// reported as an invalid-input error for the offending molecule; transport
// failures and 5xx statuses are transient and retryable.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(path).String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Invalid(requestInput(body), fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, respBody))
	default:
		return Transient(fmt.Errorf("%s returned %d", path, resp.StatusCode))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return Transient(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func requestInput(body any) string {
	switch b := body.(type) {
	case embeddingRequest:
		return b.Smiles
	case generateRequest:
		if len(b.Smiles) > 0 {
			return b.Smiles[0]
		}
	}
	return ""
}
