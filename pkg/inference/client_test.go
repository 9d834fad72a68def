package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("testmodel", srv.URL, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFindSimilarsSmiles(t *testing.T) {
	var gotRadius float64
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/similars" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		gotRadius = req.Radius
		json.NewEncoder(w).Encode(generateResponse{
			GeneratedSmiles: []string{req.Smiles[0], "CCO", "CCC"},
		})
	}))

	got, err := c.FindSimilarsSmiles(context.Background(), "CC", 2, 0.1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "CC" {
		t.Errorf("generated = %v", got)
	}
	// radius_scale 2.0 halves the caller radius on the wire.
	if gotRadius != 0.05 {
		t.Errorf("wire radius = %v, want 0.05", gotRadius)
	}
}

func TestClientErrorMapping(t *testing.T) {
	status := http.StatusBadRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad molecule", status)
	}))

	_, err := c.FindSimilarsSmiles(context.Background(), "C(", 2, 0.1, false, false)
	if !errors.Is(err, ErrInvalidMolecule) {
		t.Errorf("400 should map to ErrInvalidMolecule, got %v", err)
	}

	status = http.StatusInternalServerError
	_, err = c.FindSimilarsSmiles(context.Background(), "CC", 2, 0.1, false, false)
	if !errors.Is(err, ErrModel) {
		t.Errorf("500 should map to ErrModel, got %v", err)
	}
}

func TestSmilesToEmbedding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embedding" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Embedding{Values: []float32{1, 2, 3, 4}, Dim: []int{2, 2}})
	}))

	emb, err := c.SmilesToEmbedding(context.Background(), "CC", 64, 0.1, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(emb.Values) != 4 || emb.Dim[0] != 2 {
		t.Errorf("embedding = %+v", emb)
	}
}

func TestWaitReady(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := WaitReady(context.Background(), c, 30*time.Second); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("expected at least 2 probes, got %d", calls.Load())
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	err := WaitReady(context.Background(), c, 50*time.Millisecond)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("want ErrModelUnavailable, got %v", err)
	}
}
