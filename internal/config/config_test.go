package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	assert.Equal(t, 1500, cfg.Chunking.MaxChunkChars)
	assert.Equal(t, 0.15, cfg.Chunking.OverlapRatio)
	assert.Equal(t, 4096, cfg.Chunking.AnchorHashWindow)

	assert.Equal(t, "", cfg.Embeddings.ModelID)
	assert.Equal(t, 0, cfg.Embeddings.Dimension)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)

	assert.Equal(t, 0.35, cfg.Scoring.VectorMinRelevance)
	assert.Equal(t, 8, cfg.Scoring.MaxNeighborsPerNode)
	assert.Equal(t, 8, cfg.Scoring.LatencyBudgetFactor)

	assert.Equal(t, 0.6, cfg.Graph.SiblingDecay)
	assert.Equal(t, 25, cfg.Graph.HubDegreeThreshold)

	assert.Equal(t, 5000, cfg.Sync.GlobalIdleDebounceMS)
	assert.Equal(t, 30000, cfg.Sync.ActiveFileDebounceMS)
	assert.Equal(t, runtime.NumCPU(), cfg.Sync.IndexWorkers)

	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, 1000, cfg.Storage.HotCacheSize)

	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")

	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

func TestConfig_ScoringWeightsSumToOne(t *testing.T) {
	cfg := NewConfig()
	sum := cfg.Scoring.VectorWeight + cfg.Scoring.CentralityWeight + cfg.Scoring.ActivationWeight
	assert.InDelta(t, 1.0, sum, 0.01)
}

// =============================================================================
// Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: a directory with no .vaultengine.yaml
	tmpDir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are returned without error
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.35, cfg.Scoring.VectorMinRelevance)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a directory with .vaultengine.yaml
	tmpDir := t.TempDir()
	configContent := `
version: 1
chunking:
  max_chunk_chars: 2000
  overlap_ratio: 0.25
scoring:
  vector_min_relevance: 0.5
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: all overrides are applied
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Chunking.MaxChunkChars)
	assert.Equal(t, 0.25, cfg.Chunking.OverlapRatio)
	assert.Equal(t, 0.5, cfg.Scoring.VectorMinRelevance)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	// Given: a directory with .vaultengine.yml (alternative extension)
	tmpDir := t.TempDir()
	configContent := `
version: 1
embeddings:
  model_id: test-model
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yml file is recognized
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.Embeddings.ModelID)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	// Given: both .yaml and .yml exist
	tmpDir := t.TempDir()
	yamlContent := `
version: 1
embeddings:
  model_id: from-yaml
`
	ymlContent := `
version: 1
embeddings:
  model_id: from-yml
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yaml takes precedence
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Embeddings.ModelID)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	// Given: invalid YAML syntax
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
chunking:
  max_chunk_chars: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned with clear message
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	// Given: wrong type for a YAML-accessible field
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
chunking:
  max_chunk_chars: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
}

// =============================================================================
// Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesDataDir(t *testing.T) {
	// Given: env var for data dir
	tmpDir := t.TempDir()
	customDataDir := filepath.Join(tmpDir, "custom-data")
	t.Setenv("VAULTENGINE_DATA_DIR", customDataDir)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, customDataDir, cfg.Storage.DataDir)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	// Given: env var for log level
	tmpDir := t.TempDir()
	t.Setenv("VAULTENGINE_LOG_LEVEL", "debug")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvVarOverridesModelID(t *testing.T) {
	// Given: YAML config with model id and env var override
	tmpDir := t.TempDir()
	configContent := `
version: 1
embeddings:
  model_id: yaml-model
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vaultengine.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("VAULTENGINE_EMBEDDINGS_MODEL_ID", "env-model")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var takes precedence over YAML
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.ModelID)
}

func TestLoad_EnvVarOverridesVectorMinRelevance(t *testing.T) {
	// Given: env var for vector min relevance
	tmpDir := t.TempDir()
	t.Setenv("VAULTENGINE_VECTOR_MIN_RELEVANCE", "0.5")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Scoring.VectorMinRelevance)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	// Given: empty env var
	tmpDir := t.TempDir()
	t.Setenv("VAULTENGINE_EMBEDDINGS_MODEL_ID", "")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: default is kept
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Embeddings.ModelID)
}

// =============================================================================
// User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	// Given: no XDG_CONFIG_HOME set
	t.Setenv("XDG_CONFIG_HOME", "")

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: defaults to ~/.config/vaultengine/config.yaml
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "vaultengine", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	// Given: XDG_CONFIG_HOME is set
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: uses XDG_CONFIG_HOME
	expected := filepath.Join(customConfig, "vaultengine", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	// When: getting user config directory
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	// Then: directory is parent of config file
	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	// Given: XDG_CONFIG_HOME points to empty directory
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	// When: checking if user config exists
	exists := UserConfigExists()

	// Then: returns false
	assert.False(t, exists)
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	// Given: user config file exists
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	vaultengineDir := filepath.Join(configDir, "vaultengine")
	require.NoError(t, os.MkdirAll(vaultengineDir, 0o755))
	configPath := filepath.Join(vaultengineDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	// When: checking if user config exists
	exists := UserConfigExists()

	// Then: returns true
	assert.True(t, exists)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	// Given: user config with a custom hot cache size
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	vaultengineDir := filepath.Join(configDir, "vaultengine")
	require.NoError(t, os.MkdirAll(vaultengineDir, 0o755))
	userConfig := `
version: 1
storage:
  hot_cache_size: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(vaultengineDir, "config.yaml"), []byte(userConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: user config values are applied
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Storage.HotCacheSize)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	// Given: both user and project configs exist
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	// User config
	vaultengineDir := filepath.Join(configDir, "vaultengine")
	require.NoError(t, os.MkdirAll(vaultengineDir, 0o755))
	userConfig := `
version: 1
embeddings:
  model_id: user-model
  batch_size: 16
`
	require.NoError(t, os.WriteFile(filepath.Join(vaultengineDir, "config.yaml"), []byte(userConfig), 0o644))

	// Project config (overrides user)
	projectConfig := `
version: 1
embeddings:
  model_id: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".vaultengine.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: project config takes precedence
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.ModelID)
	// And: user config's batch size is still used (not overridden by project)
	assert.Equal(t, 16, cfg.Embeddings.BatchSize)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	// Given: all three config sources exist
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("VAULTENGINE_EMBEDDINGS_MODEL_ID", "env-model")

	// User config
	vaultengineDir := filepath.Join(configDir, "vaultengine")
	require.NoError(t, os.MkdirAll(vaultengineDir, 0o755))
	userConfig := `
version: 1
embeddings:
  model_id: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(vaultengineDir, "config.yaml"), []byte(userConfig), 0o644))

	// Project config
	projectConfig := `
version: 1
embeddings:
  model_id: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".vaultengine.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: env var has highest precedence
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.ModelID)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	// Given: invalid user config
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	vaultengineDir := filepath.Join(configDir, "vaultengine")
	require.NoError(t, os.MkdirAll(vaultengineDir, 0o755))
	invalidConfig := `
version: 1
embeddings:
  model_id: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(vaultengineDir, "config.yaml"), []byte(invalidConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}
