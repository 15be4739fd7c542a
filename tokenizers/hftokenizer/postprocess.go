package hftokenizer

import (
	"encoding/json"

	"github.com/gomlx/conll-ner/align"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/pkg/errors"
)

// PostProcessor represents the post-processor configuration.
//
// Only the single-sequence part is used: pairs of sequences are not supported.
type PostProcessor struct {
	Type          string                          `json:"type"`
	Single        []PostProcItem                  `json:"single"`
	SpecialTokens map[string]PostProcSpecialToken `json:"special_tokens"`
	Sep           *TokenAndID                     `json:"sep"`
	Cls           *TokenAndID                     `json:"cls"`
	Processors    []PostProcessor                 `json:"processors"`
}

// PostProcItem is an item in post-processing, either a special token or the input sequence.
type PostProcItem struct {
	SpecialToken *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"SpecialToken,omitempty"`
	Sequence *struct {
		ID     string `json:"id"`
		TypeID int    `json:"type_id"`
	} `json:"Sequence,omitempty"`
}

// PostProcSpecialToken defines a special token for post-processing.
type PostProcSpecialToken struct {
	ID     string   `json:"id"`
	IDs    []int    `json:"ids"`
	Tokens []string `json:"tokens"`
}

// TokenAndID is a special token given as a `["[SEP]", 102]` pair, as used by BertProcessing and
// RobertaProcessing.
type TokenAndID struct {
	Token string
	ID    int
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *TokenAndID) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrapf(err, "special token must be a [token, id] pair, got %s", data)
	}
	if len(pair) != 2 {
		return errors.Errorf("special token must be a [token, id] pair, got %s", data)
	}
	if err := json.Unmarshal(pair[0], &p.Token); err != nil {
		return errors.Wrapf(err, "invalid special token in %s", data)
	}
	if err := json.Unmarshal(pair[1], &p.ID); err != nil {
		return errors.Wrapf(err, "invalid special token id in %s", data)
	}
	return nil
}

// template holds the special tokens added before and after the words of a sentence.
type template struct {
	prefix, suffix []TokenAndID
}

func (tmpl *template) appendPrefix(enc *api.WordEncoding) {
	appendSpecial(enc, tmpl.prefix)
}

func (tmpl *template) appendSuffix(enc *api.WordEncoding) {
	appendSpecial(enc, tmpl.suffix)
}

func appendSpecial(enc *api.WordEncoding, tokens []TokenAndID) {
	for _, tok := range tokens {
		enc.IDs = append(enc.IDs, tok.ID)
		enc.Tokens = append(enc.Tokens, tok.Token)
		enc.WordIDs = append(enc.WordIDs, align.NoWord)
		enc.SpecialTokensMask = append(enc.SpecialTokensMask, true)
	}
}

// buildTemplate returns the special tokens the post-processor adds to a single sequence.
//
// Without a post-processor, the tokenizer adds [CLS] ... [SEP] if its vocabulary has both (the
// behavior of BERT's slow tokenizer), and nothing otherwise.
func (t *Tokenizer) buildTemplate(pp *PostProcessor) (*template, error) {
	if pp == nil {
		tmpl := &template{}
		if t.clsID >= 0 && t.sepID >= 0 {
			tmpl.prefix = []TokenAndID{{Token: t.idToToken[t.clsID], ID: t.clsID}}
			tmpl.suffix = []TokenAndID{{Token: t.idToToken[t.sepID], ID: t.sepID}}
		}
		return tmpl, nil
	}
	switch pp.Type {
	case "TemplateProcessing":
		return t.buildFromTemplateProcessing(pp)
	case "BertProcessing", "RobertaProcessing":
		if pp.Cls == nil || pp.Sep == nil {
			return nil, errors.Errorf("post_processor %s requires \"cls\" and \"sep\"", pp.Type)
		}
		return &template{prefix: []TokenAndID{*pp.Cls}, suffix: []TokenAndID{*pp.Sep}}, nil
	case "Sequence":
		// Processors like ByteLevel don't add tokens: use the first one that does.
		for ii := range pp.Processors {
			switch pp.Processors[ii].Type {
			case "TemplateProcessing", "BertProcessing", "RobertaProcessing":
				return t.buildTemplate(&pp.Processors[ii])
			}
		}
		return &template{}, nil
	default:
		return &template{}, nil
	}
}

func (t *Tokenizer) buildFromTemplateProcessing(pp *PostProcessor) (*template, error) {
	tmpl := &template{}
	seenSequence := false
	for _, item := range pp.Single {
		switch {
		case item.Sequence != nil:
			if seenSequence {
				return nil, errors.New("post_processor single template has more than one sequence")
			}
			seenSequence = true
		case item.SpecialToken != nil:
			tokens, err := t.templateSpecialTokens(pp, item.SpecialToken.ID)
			if err != nil {
				return nil, err
			}
			if seenSequence {
				tmpl.suffix = append(tmpl.suffix, tokens...)
			} else {
				tmpl.prefix = append(tmpl.prefix, tokens...)
			}
		}
	}
	if !seenSequence {
		return nil, errors.New("post_processor single template has no sequence")
	}
	return tmpl, nil
}

// templateSpecialTokens resolves a special token referenced by a TemplateProcessing item.
func (t *Tokenizer) templateSpecialTokens(pp *PostProcessor, name string) ([]TokenAndID, error) {
	if special, found := pp.SpecialTokens[name]; found {
		if len(special.IDs) != len(special.Tokens) {
			return nil, errors.Errorf("post_processor special token %q has %d ids and %d tokens",
				name, len(special.IDs), len(special.Tokens))
		}
		tokens := make([]TokenAndID, len(special.IDs))
		for ii, id := range special.IDs {
			tokens[ii] = TokenAndID{Token: special.Tokens[ii], ID: id}
		}
		return tokens, nil
	}
	if id, ok := t.TokenToID(name); ok {
		return []TokenAndID{{Token: name, ID: id}}, nil
	}
	return nil, errors.Errorf("post_processor special token %q not found", name)
}
