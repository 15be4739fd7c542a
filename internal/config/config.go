// Package config loads the runtime configuration of the command line tool from the
// environment, and optionally from .env files.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/conll-ner/hub"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	// DefaultModel is the model whose tokenizer is used when none is given.
	DefaultModel = "bert-base-cased"

	// UnsetMaxLength means the tokenizer's model_max_length is used.
	UnsetMaxLength = -1
)

// Cfg holds the configuration shared by all commands. Command line flags override it.
type Cfg struct {
	HFToken  string // HF_TOKEN
	CacheDir string // HF_HUB_CACHE, or $HF_HOME/hub
	Endpoint string // HF_ENDPOINT

	Model     string // CONLL_NER_MODEL, tokenizer/checkpoint repository
	MaxLength int    // CONLL_NER_MAX_LENGTH, 0 means no truncation, UnsetMaxLength if not set
	Workers   int    // CONLL_NER_WORKERS, 0 means one per CPU
}

// Load reads the given .env files (or ./.env if present, when none is given), then the
// environment variables. Variables already set in the environment take precedence over .env files.
func Load(envFiles ...string) (*Cfg, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, errors.Wrapf(err, "failed to load env files %v", envFiles)
		}
	} else {
		// Best-effort: load .env from current directory
		_ = godotenv.Load()
	}

	cfg := &Cfg{
		HFToken:  strings.TrimSpace(os.Getenv("HF_TOKEN")),
		CacheDir: hub.DefaultCacheDir(),
		Endpoint: strings.TrimRight(strings.TrimSpace(os.Getenv("HF_ENDPOINT")), "/"),
		Model:    strings.TrimSpace(os.Getenv("CONLL_NER_MODEL")),
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = hub.DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	var err error
	cfg.MaxLength = UnsetMaxLength
	if os.Getenv("CONLL_NER_MAX_LENGTH") != "" {
		if cfg.MaxLength, err = intFromEnv("CONLL_NER_MAX_LENGTH"); err != nil {
			return nil, err
		}
	}
	if cfg.Workers, err = intFromEnv("CONLL_NER_WORKERS"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intFromEnv(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return v, nil
}

// Repo returns the model repository id configured with the token, cache and endpoint.
func (c *Cfg) Repo(id string) *hub.Repo {
	return c.Configure(hub.New(id))
}

// Configure sets the token, cache and endpoint of repo, and returns it.
func (c *Cfg) Configure(repo *hub.Repo) *hub.Repo {
	return repo.WithAuth(c.HFToken).WithCacheDir(c.CacheDir).WithEndpoint(c.Endpoint)
}
