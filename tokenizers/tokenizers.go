// Package tokenizers creates tokenizers for HuggingFace models.
//
// Example:
//
//	repo := hub.New("dslim/bert-base-NER")
//	tok, err := tokenizers.New(repo)
//	if err != nil { ... }
//	enc := tok.EncodeWords([]string{"EU", "rejects", "German", "call"})
//
// tokenizer.json files (the "fast" tokenizers) are handled by package hftokenizer, and
// SentencePiece tokenizer.model files by package sentencepiece.
package tokenizers

import (
	"sync"

	"github.com/gomlx/conll-ner/hub"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/gomlx/conll-ner/tokenizers/hftokenizer"
	"github.com/gomlx/conll-ner/tokenizers/sentencepiece"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Constructor creates a tokenizer from a repository, given its tokenizer_config.json.
// config may be nil if the repository doesn't have one.
type Constructor func(config *api.Config, repo *hub.Repo) (api.WordTokenizer, error)

var (
	muRegistry sync.Mutex

	// classConstructors maps tokenizer_class values to the constructor to use.
	classConstructors = map[string]Constructor{}
)

// RegisterTokenizerClass sets the constructor used for repositories whose tokenizer_config.json
// has the given "tokenizer_class". It overrides the selection by file.
func RegisterTokenizerClass(class string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	classConstructors[class] = constructor
}

func constructorForClass(class string) Constructor {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	return classConstructors[class]
}

// New creates the tokenizer of the model (or dataset) in repo.
//
// It reads tokenizer_config.json if present, and then uses tokenizer.json if available,
// falling back to a SentencePiece tokenizer.model.
func New(repo *hub.Repo) (api.WordTokenizer, error) {
	tok, _, err := NewWithConfig(repo)
	return tok, err
}

// NewWithConfig is like New, and also returns the tokenizer_config.json it used, which is nil
// if the repository doesn't have one.
func NewWithConfig(repo *hub.Repo) (api.WordTokenizer, *api.Config, error) {
	config, err := LoadConfig(repo)
	if err != nil {
		return nil, nil, err
	}
	var constructor Constructor
	if config != nil {
		constructor = constructorForClass(config.TokenizerClass)
	}
	switch {
	case constructor != nil:
	case repo.HasFile("tokenizer.json"):
		constructor = hftokenizer.New
	case repo.HasFile("tokenizer.model"):
		klog.V(1).Infof("%s has no tokenizer.json, using SentencePiece tokenizer.model", repo)
		constructor = sentencepiece.New
	default:
		return nil, nil, errors.Errorf("no tokenizer.json or tokenizer.model found in %s", repo)
	}
	tok, err := constructor(config, repo)
	if err != nil {
		return nil, nil, err
	}
	return tok, config, nil
}

// LoadConfig downloads and parses the tokenizer_config.json of the repository.
// It returns nil (and no error) if the repository doesn't have one.
func LoadConfig(repo *hub.Repo) (*api.Config, error) {
	if !repo.HasFile("tokenizer_config.json") {
		return nil, nil
	}
	configFile, err := repo.DownloadFile("tokenizer_config.json")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer_config.json from %s", repo)
	}
	config, err := api.ParseConfigFile(configFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "tokenizer config of %s", repo)
	}
	return config, nil
}
