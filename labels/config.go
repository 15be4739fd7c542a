package labels

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// modelConfig is the subset of a HuggingFace model `config.json` that holds the vocabulary.
type modelConfig struct {
	ID2Label  map[string]string `json:"id2label"`
	Label2ID  map[string]int    `json:"label2id"`
	NumLabels int               `json:"num_labels,omitempty"`
}

// FromConfigJSON reconstructs the vocabulary from the `id2label` field of a HuggingFace
// model `config.json`. If `label2id` is also present, it must agree with `id2label`.
//
// Codes must form the sequence 0, 1, ..., n-1 with no gaps.
func FromConfigJSON(content []byte) (*Vocabulary, error) {
	var cfg modelConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse model config")
	}
	if len(cfg.ID2Label) == 0 {
		return nil, errors.New("model config has no \"id2label\" mapping")
	}
	names := make([]string, len(cfg.ID2Label))
	seen := make([]bool, len(cfg.ID2Label))
	for key, name := range cfg.ID2Label {
		code, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid id2label key %q", key)
		}
		if code < 0 || code >= len(names) {
			return nil, errors.Errorf("id2label code %d out of range: %d labels defined, codes must be 0 to %d",
				code, len(names), len(names)-1)
		}
		if seen[code] {
			return nil, errors.Errorf("id2label code %d defined more than once", code)
		}
		seen[code] = true
		names[code] = name
	}
	v, err := New(names...)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid id2label in model config")
	}
	for name, code := range cfg.Label2ID {
		if got, found := v.codes[name]; !found || got != code {
			return nil, errors.Errorf("label2id[%q]=%d disagrees with id2label", name, code)
		}
	}
	if cfg.NumLabels != 0 && cfg.NumLabels != v.Len() {
		return nil, errors.Errorf("num_labels=%d but id2label has %d labels", cfg.NumLabels, v.Len())
	}
	return v, nil
}

// FromConfigFile reads the vocabulary from a model `config.json` file.
func FromConfigFile(filePath string) (*Vocabulary, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model config %q", filePath)
	}
	v, err := FromConfigJSON(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", filePath)
	}
	return v, nil
}

// ConfigJSON returns the vocabulary serialized as the `id2label`, `label2id` and `num_labels`
// fields of a HuggingFace model `config.json`.
func (v *Vocabulary) ConfigJSON() ([]byte, error) {
	cfg := modelConfig{
		ID2Label:  make(map[string]string, len(v.names)),
		Label2ID:  v.Label2ID(),
		NumLabels: len(v.names),
	}
	for code, name := range v.names {
		cfg.ID2Label[strconv.Itoa(code)] = name
	}
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize vocabulary")
	}
	return content, nil
}

// WriteConfigJSON writes the vocabulary in the model `config.json` layout to filePath.
func (v *Vocabulary) WriteConfigJSON(filePath string) error {
	content, err := v.ConfigJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return errors.Wrapf(err, "failed to write vocabulary to %q", filePath)
	}
	return nil
}
