// Package output persists metric results as they are produced. The CSV
// writer appends to a shared file across runs so successive benchmark
// invocations accumulate into one table; the JSON writer emits one JSON
// document per line and carries fields the flat CSV omits, such as
// per-molecule predictions.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gagank1/cheminformatics/pkg/models"
)

// Writer persists metric results one row at a time.
type Writer interface {
	Write(models.MetricResult) error
	Close() error
}

// csvHeader defines the flattened column order. Changing it changes the
// on-disk format, so existing result files would need a new path.
var csvHeader = []string{
	"name", "model", "run_id", "value",
	"radius", "top_k", "property", "num_samples",
	"data_size", "excluded", "run_time_s", "timestamp", "error",
	"fingerprint_error", "embedding_error",
}

// CSVWriter appends metric rows to a CSV file, writing the header only
// when it creates the file. Writes are flushed immediately so a killed
// run keeps every completed metric.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter opens path for appending, creating it (and its parent
// directory) with a header row if it does not exist.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results csv: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat results csv: %w", err)
	}

	cw := &CSVWriter{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cw.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		cw.w.Flush()
		if err := cw.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return cw, nil
}

// Write appends one result row. Safe for concurrent use.
func (cw *CSVWriter) Write(r models.MetricResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		r.Name,
		r.Model,
		r.RunID,
		formatFloat(r.Value),
		formatFloat(r.Radius),
		strconv.Itoa(r.TopK),
		r.Property,
		strconv.Itoa(r.NumSamples),
		strconv.Itoa(r.DataSize),
		strconv.Itoa(r.Excluded),
		strconv.FormatFloat(r.RunTime, 'f', 4, 64),
		r.Timestamp.Format(time.RFC3339),
		r.Error,
		formatFloat(r.FingerprintError),
		formatFloat(r.EmbeddingError),
	}
	if err := cw.w.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	cw.w.Flush()
	return cw.w.Error()
}

// Close flushes and closes the file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		cw.file.Close()
		return err
	}
	return cw.file.Close()
}

// formatFloat renders a value for the CSV, leaving the cell empty when
// the value is NaN so spreadsheet tools parse the column as numeric.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// JSONWriter appends metric results as JSON lines.
type JSONWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONWriter opens path for appending, creating it and its parent
// directory as needed.
func NewJSONWriter(path string) (*JSONWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results json: %w", err)
	}
	return &JSONWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one result as a JSON line. Safe for concurrent use.
func (jw *JSONWriter) Write(r models.MetricResult) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if err := jw.enc.Encode(r); err != nil {
		return fmt.Errorf("write json row: %w", err)
	}
	return nil
}

// Close closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.Close()
}

// Multi fans a result out to several writers, returning the first error.
type Multi []Writer

func (m Multi) Write(r models.MetricResult) error {
	for _, w := range m {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
