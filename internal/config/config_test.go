package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/conll-ner/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the variables read by Load, restoring them when the test ends.
func clearEnv(t *testing.T) {
	for _, key := range []string{"HF_TOKEN", "HF_HOME", "HF_HUB_CACHE", "HF_ENDPOINT",
		"CONLL_NER_MODEL", "CONLL_NER_MAX_LENGTH", "CONLL_NER_WORKERS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HF_HOME", "/tmp/hf-home")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
	assert.Nil(t, cfg)

	empty := filepath.Join(t.TempDir(), "empty.env")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	cfg, err = Load(empty)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, hub.DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, filepath.Join("/tmp/hf-home", "hub"), cfg.CacheDir)
	assert.Equal(t, UnsetMaxLength, cfg.MaxLength)
	assert.Empty(t, cfg.HFToken)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONLL_NER_WORKERS", "2")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"HF_TOKEN=hf_secret\nHF_HUB_CACHE=/tmp/hub-cache\nHF_ENDPOINT=http://mirror.local/\n"+
			"CONLL_NER_MODEL=dslim/bert-base-NER\nCONLL_NER_MAX_LENGTH=128\nCONLL_NER_WORKERS=8\n"), 0644))
	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "hf_secret", cfg.HFToken)
	assert.Equal(t, "/tmp/hub-cache", cfg.CacheDir)
	assert.Equal(t, "http://mirror.local", cfg.Endpoint)
	assert.Equal(t, "dslim/bert-base-NER", cfg.Model)
	assert.Equal(t, 128, cfg.MaxLength)
	// The environment takes precedence over the file.
	assert.Equal(t, 2, cfg.Workers)

	repo := cfg.Repo("dslim/bert-base-NER")
	assert.Equal(t, "http://mirror.local/dslim/bert-base-NER/resolve/main/config.json", repo.FileURL("config.json"))
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONLL_NER_MAX_LENGTH", "many")
	envFile := filepath.Join(t.TempDir(), "empty.env")
	require.NoError(t, os.WriteFile(envFile, nil, 0644))
	_, err := Load(envFile)
	assert.Error(t, err)

	t.Setenv("CONLL_NER_MAX_LENGTH", "0")
	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxLength, "0 disables truncation")
}
