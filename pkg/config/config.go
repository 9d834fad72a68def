// Package config loads the benchmark configuration: YAML with environment
// variable expansion and `${section.key}` cross-references resolved against
// the document itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chembench configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Sampling SamplingConfig `yaml:"sampling"`
	Output   OutputConfig   `yaml:"output"`
	Metric   MetricSection  `yaml:"metric"`
}

// ModelConfig identifies the generative model under benchmark and its
// datasets.
type ModelConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// TrainingData points at the canonical SMILES the model was trained
	// on; novelty is measured against it.
	TrainingData string `yaml:"training_data"`
	// BenchmarkData holds the seed molecules (and property columns) the
	// metrics sample around.
	BenchmarkData string `yaml:"benchmark_data"`
	// RadiusScale divides configured radii before they reach the model.
	RadiusScale float64 `yaml:"radius_scale"`
}

// SamplingConfig controls the sample cache and the concurrent sampler.
type SamplingConfig struct {
	DB                 string        `yaml:"db"`
	SampleSize         int           `yaml:"sample_size"`
	MaxSeqLen          int           `yaml:"max_seq_len"`
	ConcurrentRequests int           `yaml:"concurrent_requests"`
	Retries            int           `yaml:"retries"`
	Seed               int64         `yaml:"seed"`
	ReadyTimeout       time.Duration `yaml:"ready_timeout"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
}

// OutputConfig controls result persistence.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// MetricSection holds per-metric configuration.
type MetricSection struct {
	Validity                   MetricConfig `yaml:"validity"`
	Unique                     MetricConfig `yaml:"unique"`
	Novelty                    MetricConfig `yaml:"novelty"`
	NearestNeighborCorrelation MetricConfig `yaml:"nearest_neighbor_correlation"`
	Modelability               MetricConfig `yaml:"modelability"`
}

// MetricConfig is the shared per-metric parameter set; each metric reads
// the fields that apply to it.
type MetricConfig struct {
	Enabled bool `yaml:"enabled"`
	// InputSize limits the number of seed molecules; -1 or 0 means the
	// full dataset.
	InputSize         int       `yaml:"input_size"`
	Radius            []float64 `yaml:"radius"`
	TopK              []int     `yaml:"top_k"`
	RemoveInvalid     bool      `yaml:"remove_invalid"`
	NSplits           int       `yaml:"n_splits"`
	NormalizeInputs   bool      `yaml:"normalize_inputs"`
	ReturnPredictions bool      `yaml:"return_predictions"`
	// GeneCnt caps the number of bioactivity target columns evaluated by
	// modelability; 0 means all.
	GeneCnt int `yaml:"gene_cnt"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			RadiusScale: 1.0,
		},
		Sampling: SamplingConfig{
			DB:                 "chembench.sqlite3",
			SampleSize:         10,
			MaxSeqLen:          512,
			ConcurrentRequests: 8,
			Retries:            3,
			ReadyTimeout:       30 * time.Second,
			RunTimeout:         2 * time.Hour,
		},
		Output: OutputConfig{
			Path: "results",
		},
		Metric: MetricSection{
			Validity: MetricConfig{Enabled: true, InputSize: 10, Radius: []float64{0.01}},
			Unique:   MetricConfig{Enabled: true, InputSize: 10, Radius: []float64{0.01}},
			Novelty:  MetricConfig{Enabled: true, InputSize: 10, Radius: []float64{0.01}},
			NearestNeighborCorrelation: MetricConfig{
				Enabled: true, InputSize: -1, TopK: []int{50, 100, 500},
			},
			Modelability: MetricConfig{
				Enabled: true, InputSize: -1, NSplits: 4, NormalizeInputs: true,
			},
		},
	}
}

// Load reads a YAML config file, expands environment variables, resolves
// `${a.b.c}` references against the document, and overlays the result on
// Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	resolved, err := interpolate(doc)
	if err != nil {
		return nil, fmt.Errorf("resolve config references: %w", err)
	}

	flat, err := yaml.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("rewrite config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(flat, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("config: model.name is required")
	}
	if c.Sampling.ConcurrentRequests < 1 {
		return fmt.Errorf("config: sampling.concurrent_requests must be >= 1")
	}
	if c.Model.RadiusScale <= 0 {
		return fmt.Errorf("config: model.radius_scale must be > 0")
	}
	if c.Metric.Modelability.Enabled && c.Metric.Modelability.NSplits < 2 {
		return fmt.Errorf("config: metric.modelability.n_splits must be >= 2")
	}
	return nil
}
