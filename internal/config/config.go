// Package config loads and validates the engine's YAML configuration,
// layering hardcoded defaults, a user config, a vault-local config and
// environment overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Scoring    ScoringConfig    `yaml:"scoring" json:"scoring"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// PathsConfig configures which files under the vault root are indexed.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig configures the recursive chunker (§4.1).
type ChunkingConfig struct {
	// MaxChunkChars bounds each chunk's length before the chunker falls
	// back to a finer split granularity (paragraph -> sentence ->
	// whitespace -> character).
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	// OverlapRatio is the fraction of MaxChunkChars repeated at the
	// start of the next chunk, in [0, 1).
	OverlapRatio float64 `yaml:"overlap_ratio" json:"overlap_ratio"`
	// AnchorHashWindow is the number of leading bytes of a chunk hashed
	// for drift detection (§4.1, §4.7).
	AnchorHashWindow int `yaml:"anchor_hash_window" json:"anchor_hash_window"`
}

// EmbeddingsConfig names the embedding capability's model identity.
// The engine never implements embedding generation itself; this only
// keys persisted shards.
type EmbeddingsConfig struct {
	// Provider selects the Embedder capability backing this vault.
	// "static" (the default and the only backend this engine ships) is
	// an offline, deterministic, hash-based embedder; the field stays
	// independently configurable so a model-backed provider can be
	// introduced later without a schema change.
	Provider  string `yaml:"provider" json:"provider"`
	ModelID   string `yaml:"model_id" json:"model_id"`
	Dimension int    `yaml:"dimension" json:"dimension"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// ScoringConfig holds GARS hybrid scorer (§4.6) settings. Only
// HydrationSearchRange is read by the engine; the scorer uses its own
// constants (e.g. TitleBoost 0.15 in internal/scorer), not these fields.
type ScoringConfig struct {
	VectorWeight         float64 `yaml:"vector_weight" json:"vector_weight"`
	CentralityWeight     float64 `yaml:"centrality_weight" json:"centrality_weight"`
	ActivationWeight     float64 `yaml:"activation_weight" json:"activation_weight"`
	HybridBoost          float64 `yaml:"hybrid_boost" json:"hybrid_boost"`
	TitleBoost           float64 `yaml:"title_boost" json:"title_boost"`
	VectorMinRelevance   float64 `yaml:"vector_min_relevance" json:"vector_min_relevance"`
	ExpansionThreshold   float64 `yaml:"expansion_threshold" json:"expansion_threshold"`
	AbsoluteMinExpansion float64 `yaml:"absolute_min_expansion_score" json:"absolute_min_expansion_score"`
	MaxNeighborsPerNode  int     `yaml:"max_neighbors_per_node" json:"max_neighbors_per_node"`
	FuzzyScoreCap        float64 `yaml:"fuzzy_score_cap" json:"fuzzy_score_cap"`
	ReflexLatencyBudgetMS int    `yaml:"reflex_latency_budget_ms" json:"reflex_latency_budget_ms"`
	LatencyBudgetFactor   int    `yaml:"latency_budget_factor" json:"latency_budget_factor"`
	HydrationSearchRange  int    `yaml:"hydration_search_range" json:"hydration_search_range"`
}

// GraphConfig holds graph store settings (§4.5). Only OntologyFolder is
// read by the engine; SiblingDecay and HubDegreeThreshold are not passed
// to the graph.
type GraphConfig struct {
	SiblingDecay       float64 `yaml:"sibling_decay" json:"sibling_decay"`
	HubDegreeThreshold int     `yaml:"hub_degree_threshold" json:"hub_degree_threshold"`
	// OntologyFolder is the vault-relative folder whose topic nodes
	// qualify for ontology-mode (2-hop sibling) neighbour expansion
	// (§4.5).
	OntologyFolder string `yaml:"ontology_folder" json:"ontology_folder"`
}

// SyncConfig holds the sync orchestrator's debounce and worker-pool
// settings (§4.9). These fields are not passed to the orchestrator,
// which uses its own defaults (5s global idle, 30s active file).
type SyncConfig struct {
	GlobalIdleDebounceMS int `yaml:"global_idle_debounce_ms" json:"global_idle_debounce_ms"`
	ActiveFileDebounceMS int `yaml:"active_file_debounce_ms" json:"active_file_debounce_ms"`
	IndexWorkers         int `yaml:"index_workers" json:"index_workers"`
}

// StorageConfig configures where the engine keeps its data.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	HotCacheSize int    `yaml:"hot_cache_size" json:"hot_cache_size"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.obsidian/**",
	"**/.trash/**",
	"**/node_modules/**",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunking: ChunkingConfig{
			MaxChunkChars:    1500,
			OverlapRatio:     0.15,
			AnchorHashWindow: 4096,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			ModelID:   "",
			Dimension: 0,
			BatchSize: 32,
		},
		Scoring: ScoringConfig{
			VectorWeight:          0.5,
			CentralityWeight:      0.2,
			ActivationWeight:      0.3,
			HybridBoost:           0.1,
			TitleBoost:            0.05,
			VectorMinRelevance:    0.35,
			ExpansionThreshold:    0.6,
			AbsoluteMinExpansion:  0.2,
			MaxNeighborsPerNode:   8,
			FuzzyScoreCap:         1.0,
			ReflexLatencyBudgetMS: 100,
			LatencyBudgetFactor:   8,
			HydrationSearchRange:  256,
		},
		Graph: GraphConfig{
			SiblingDecay:       0.6,
			HubDegreeThreshold: 25,
			OntologyFolder:     "Ontology",
		},
		Sync: SyncConfig{
			GlobalIdleDebounceMS: 5000,
			ActiveFileDebounceMS: 30000,
			IndexWorkers:         runtime.NumCPU(),
		},
		Storage: StorageConfig{
			DataDir:      defaultDataDir(),
			HotCacheSize: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns ~/.vaultengine/data, falling back to the temp
// directory when the home directory is unavailable.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vaultengine", "data")
	}
	return filepath.Join(home, ".vaultengine", "data")
}

// GetUserConfigPath returns the user/global configuration path,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vaultengine", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vaultengine", "config.yaml")
	}
	return filepath.Join(home, ".config", "vaultengine", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user
// configuration file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether a user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration for a vault rooted at dir, applying, in
// order of increasing precedence: hardcoded defaults, the user/global
// config, a vault-local `.vaultengine.yaml`, then environment
// overrides. The result is validated before being returned.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".vaultengine.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".vaultengine.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Chunking.MaxChunkChars != 0 {
		c.Chunking.MaxChunkChars = other.Chunking.MaxChunkChars
	}
	if other.Chunking.OverlapRatio != 0 {
		c.Chunking.OverlapRatio = other.Chunking.OverlapRatio
	}
	if other.Chunking.AnchorHashWindow != 0 {
		c.Chunking.AnchorHashWindow = other.Chunking.AnchorHashWindow
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.ModelID != "" {
		c.Embeddings.ModelID = other.Embeddings.ModelID
	}
	if other.Embeddings.Dimension != 0 {
		c.Embeddings.Dimension = other.Embeddings.Dimension
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	if other.Scoring.VectorWeight != 0 {
		c.Scoring.VectorWeight = other.Scoring.VectorWeight
	}
	if other.Scoring.CentralityWeight != 0 {
		c.Scoring.CentralityWeight = other.Scoring.CentralityWeight
	}
	if other.Scoring.ActivationWeight != 0 {
		c.Scoring.ActivationWeight = other.Scoring.ActivationWeight
	}
	if other.Scoring.HybridBoost != 0 {
		c.Scoring.HybridBoost = other.Scoring.HybridBoost
	}
	if other.Scoring.TitleBoost != 0 {
		c.Scoring.TitleBoost = other.Scoring.TitleBoost
	}
	if other.Scoring.VectorMinRelevance != 0 {
		c.Scoring.VectorMinRelevance = other.Scoring.VectorMinRelevance
	}
	if other.Scoring.ExpansionThreshold != 0 {
		c.Scoring.ExpansionThreshold = other.Scoring.ExpansionThreshold
	}
	if other.Scoring.AbsoluteMinExpansion != 0 {
		c.Scoring.AbsoluteMinExpansion = other.Scoring.AbsoluteMinExpansion
	}
	if other.Scoring.MaxNeighborsPerNode != 0 {
		c.Scoring.MaxNeighborsPerNode = other.Scoring.MaxNeighborsPerNode
	}
	if other.Scoring.FuzzyScoreCap != 0 {
		c.Scoring.FuzzyScoreCap = other.Scoring.FuzzyScoreCap
	}
	if other.Scoring.ReflexLatencyBudgetMS != 0 {
		c.Scoring.ReflexLatencyBudgetMS = other.Scoring.ReflexLatencyBudgetMS
	}
	if other.Scoring.LatencyBudgetFactor != 0 {
		c.Scoring.LatencyBudgetFactor = other.Scoring.LatencyBudgetFactor
	}
	if other.Scoring.HydrationSearchRange != 0 {
		c.Scoring.HydrationSearchRange = other.Scoring.HydrationSearchRange
	}

	if other.Graph.SiblingDecay != 0 {
		c.Graph.SiblingDecay = other.Graph.SiblingDecay
	}
	if other.Graph.HubDegreeThreshold != 0 {
		c.Graph.HubDegreeThreshold = other.Graph.HubDegreeThreshold
	}
	if other.Graph.OntologyFolder != "" {
		c.Graph.OntologyFolder = other.Graph.OntologyFolder
	}

	if other.Sync.GlobalIdleDebounceMS != 0 {
		c.Sync.GlobalIdleDebounceMS = other.Sync.GlobalIdleDebounceMS
	}
	if other.Sync.ActiveFileDebounceMS != 0 {
		c.Sync.ActiveFileDebounceMS = other.Sync.ActiveFileDebounceMS
	}
	if other.Sync.IndexWorkers != 0 {
		c.Sync.IndexWorkers = other.Sync.IndexWorkers
	}

	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.HotCacheSize != 0 {
		c.Storage.HotCacheSize = other.Storage.HotCacheSize
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// applyEnvOverrides applies VAULTENGINE_* environment variable
// overrides, for the handful of values commonly tuned per machine.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTENGINE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("VAULTENGINE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VAULTENGINE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VAULTENGINE_EMBEDDINGS_MODEL_ID"); v != "" {
		c.Embeddings.ModelID = v
	}
	if v := os.Getenv("VAULTENGINE_EMBEDDINGS_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimension = d
		}
	}
	if v := os.Getenv("VAULTENGINE_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.IndexWorkers = n
		}
	}
	if v := os.Getenv("VAULTENGINE_VECTOR_MIN_RELEVANCE"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Scoring.VectorMinRelevance = f
		}
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	weightSum := c.Scoring.VectorWeight + c.Scoring.CentralityWeight + c.Scoring.ActivationWeight
	if math.Abs(weightSum-1.0) > 0.01 {
		return fmt.Errorf("scoring.vector_weight + centrality_weight + activation_weight must equal 1.0, got %.2f", weightSum)
	}
	if c.Scoring.VectorMinRelevance < 0 || c.Scoring.VectorMinRelevance > 1 {
		return fmt.Errorf("scoring.vector_min_relevance must be between 0 and 1, got %f", c.Scoring.VectorMinRelevance)
	}
	if c.Chunking.MaxChunkChars <= 0 {
		return fmt.Errorf("chunking.max_chunk_chars must be positive, got %d", c.Chunking.MaxChunkChars)
	}
	if c.Chunking.OverlapRatio < 0 || c.Chunking.OverlapRatio >= 1 {
		return fmt.Errorf("chunking.overlap_ratio must be in [0, 1), got %f", c.Chunking.OverlapRatio)
	}
	if c.Sync.IndexWorkers <= 0 {
		return fmt.Errorf("sync.index_workers must be positive, got %d", c.Sync.IndexWorkers)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
