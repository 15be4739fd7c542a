package api

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config holds the fields of a `tokenizer_config.json` file used by the tokenizers.
//
// Special tokens may be given either as a plain string or as an "AddedToken" object
// with a "content" field, both are accepted.
type Config struct {
	TokenizerClass string `json:"tokenizer_class"`
	DoLowerCase    bool   `json:"do_lower_case"`
	ModelMaxLength int    `json:"-"`

	// AddBosToken and AddEosToken are nil when not set in the file.
	AddBosToken *bool `json:"add_bos_token"`
	AddEosToken *bool `json:"add_eos_token"`

	BosToken  string `json:"-"`
	EosToken  string `json:"-"`
	UnkToken  string `json:"-"`
	SepToken  string `json:"-"`
	PadToken  string `json:"-"`
	ClsToken  string `json:"-"`
	MaskToken string `json:"-"`
}

// maxReasonableLength filters out the VERY_LARGE_INTEGER transformers writes when a model has
// no maximum length.
const maxReasonableLength = 1 << 20

// rawConfig mirrors Config, with the fields whose JSON form varies.
type rawConfig struct {
	TokenizerClass string          `json:"tokenizer_class"`
	DoLowerCase    bool            `json:"do_lower_case"`
	ModelMaxLength float64         `json:"model_max_length"`
	AddBosToken    *bool           `json:"add_bos_token"`
	AddEosToken    *bool           `json:"add_eos_token"`
	BosToken       json.RawMessage `json:"bos_token"`
	EosToken       json.RawMessage `json:"eos_token"`
	UnkToken       json.RawMessage `json:"unk_token"`
	SepToken       json.RawMessage `json:"sep_token"`
	PadToken       json.RawMessage `json:"pad_token"`
	ClsToken       json.RawMessage `json:"cls_token"`
	MaskToken      json.RawMessage `json:"mask_token"`
}

// ParseConfig parses the contents of a `tokenizer_config.json` file.
func ParseConfig(content []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer config")
	}
	config := &Config{
		TokenizerClass: raw.TokenizerClass,
		DoLowerCase:    raw.DoLowerCase,
		AddBosToken:    raw.AddBosToken,
		AddEosToken:    raw.AddEosToken,
	}
	if raw.ModelMaxLength > 0 && raw.ModelMaxLength < maxReasonableLength {
		config.ModelMaxLength = int(raw.ModelMaxLength)
	}
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"bos_token", raw.BosToken, &config.BosToken},
		{"eos_token", raw.EosToken, &config.EosToken},
		{"unk_token", raw.UnkToken, &config.UnkToken},
		{"sep_token", raw.SepToken, &config.SepToken},
		{"pad_token", raw.PadToken, &config.PadToken},
		{"cls_token", raw.ClsToken, &config.ClsToken},
		{"mask_token", raw.MaskToken, &config.MaskToken},
	}
	for _, field := range fields {
		token, err := parseSpecialToken(field.raw)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %q of tokenizer config", field.name)
		}
		*field.dst = token
	}
	return config, nil
}

// ParseConfigFile parses a `tokenizer_config.json` file.
func ParseConfigFile(filePath string) (*Config, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer config %q", filePath)
	}
	return ParseConfig(content)
}

func parseSpecialToken(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err == nil {
		return token, nil
	}
	var added struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &added); err != nil {
		return "", errors.Wrapf(err, "special token must be a string or an object with \"content\", got %s", raw)
	}
	return added.Content, nil
}
