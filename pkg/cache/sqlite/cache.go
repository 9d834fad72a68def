// Package sqlite implements the durable sample cache: a fingerprint-keyed
// store of model outputs that outlives a single benchmark run, so repeated
// runs never repeat an expensive model call.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/sync/singleflight"

	"github.com/gagank1/cheminformatics/pkg/models"
)

// Store is a sample cache backed by SQLite.
type Store struct {
	db     *sql.DB
	flight singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

const createSamplesTable = `
CREATE TABLE IF NOT EXISTS samples (
	fingerprint TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	op TEXT NOT NULL,
	result BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_samples_model_op ON samples(model, op);
`

// Open creates a Store at the given database path. The connection waits
// out short lock contention; the run history shares the same file.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sample db: %w", err)
	}

	if _, err := db.Exec(createSamplesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sample db: %w", err)
	}

	return &Store{db: db}, nil
}

// Fingerprint computes a deterministic SHA-256 hash over every field of the
// request. Semantically distinct requests (any field differing, including
// num_requested and seed) get distinct fingerprints.
func Fingerprint(req models.SampleRequest) string {
	h := sha256.New()
	data, _ := json.Marshal(req)
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves a cached result by fingerprint. An unreadable persisted
// record is dropped so the caller recomputes it instead of failing the
// fingerprint forever.
func (s *Store) Get(ctx context.Context, fingerprint string) (models.SampleResult, bool) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM samples WHERE fingerprint = ?`, fingerprint,
	).Scan(&blob)
	if err != nil {
		s.misses.Add(1)
		return models.SampleResult{}, false
	}

	var res models.SampleResult
	if err := json.Unmarshal(blob, &res); err != nil {
		slog.Warn("sample cache corruption, forcing recomputation",
			"fingerprint", fingerprint, "error", err)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM samples WHERE fingerprint = ?`, fingerprint)
		s.misses.Add(1)
		return models.SampleResult{}, false
	}

	s.hits.Add(1)
	return res, true
}

// Put stores a result. Results are immutable per fingerprint: an existing
// row wins and the insert is a no-op, so concurrent writers of the same
// fingerprint cannot clobber each other.
func (s *Store) Put(ctx context.Context, res models.SampleResult) error {
	blob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO samples (fingerprint, model, op, result, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		res.Fingerprint, res.Model, string(res.Op), blob, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// GetOrCompute returns the cached result for req, computing and persisting
// it on a miss. At most one compute runs per fingerprint at a time:
// concurrent callers of the same fingerprint share a single in-flight
// computation and all receive its result.
func (s *Store) GetOrCompute(ctx context.Context, req models.SampleRequest, compute func(ctx context.Context) (models.SampleResult, error)) (models.SampleResult, error) {
	fp := Fingerprint(req)

	v, err, _ := s.flight.Do(fp, func() (any, error) {
		if res, ok := s.Get(ctx, fp); ok {
			return res, nil
		}

		res, err := compute(ctx)
		if err != nil {
			return models.SampleResult{}, err
		}
		res.Fingerprint = fp
		if res.CreatedAt.IsZero() {
			res.CreatedAt = time.Now().UTC()
		}
		if err := s.Put(ctx, res); err != nil {
			return models.SampleResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return models.SampleResult{}, err
	}
	return v.(models.SampleResult), nil
}

// Stats returns cache performance counters.
func (s *Store) Stats() (models.CacheStats, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes cached samples, optionally only those from one model.
// Callers wanting a full rebuild clear explicitly; nothing ever evicts
// behind their back.
func (s *Store) Clear(model string) error {
	var err error
	if model == "" {
		_, err = s.db.Exec(`DELETE FROM samples`)
	} else {
		_, err = s.db.Exec(`DELETE FROM samples WHERE model = ?`, model)
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
