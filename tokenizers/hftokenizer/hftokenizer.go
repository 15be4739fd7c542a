// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format.
// This format is used by the HuggingFace Tokenizers library (the "fast" tokenizers)
// and supports WordPiece (BERT), BPE (GPT-2, RoBERTa), and Unigram models.
//
// Besides plain text encoding, it implements api.WordTokenizer: sentences already split into
// words (like the "tokens" column of CoNLL-2003) are tokenized word by word, and every token
// reports the index of the word it came from.
package hftokenizer

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/gomlx/conll-ner/align"
	"github.com/gomlx/conll-ner/hub"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/pkg/errors"
)

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version       string          `json:"version"`
	Truncation    json.RawMessage `json:"truncation"`
	Padding       json.RawMessage `json:"padding"`
	AddedTokens   []AddedToken    `json:"added_tokens"`
	Normalizer    *Normalizer     `json:"normalizer"`
	PreTokenizer  *PreTokenizer   `json:"pre_tokenizer"`
	PostProcessor *PostProcessor  `json:"post_processor"`
	Decoder       *Decoder        `json:"decoder"`
	Model         Model           `json:"model"`
}

// AddedToken represents a special token added to the vocabulary.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	StripAccent *bool        `json:"strip_accents"`
	Normalizers []Normalizer `json:"normalizers"`
}

// Pattern for regex-based operations.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PreTokenizers  []PreTokenizer `json:"pretokenizers"`
	Pattern        *Pattern       `json:"pattern"`
	Replacement    string         `json:"replacement"`
}

// Decoder represents the decoder configuration.
type Decoder struct {
	Type     string    `json:"type"`
	Prefix   string    `json:"prefix"`
	Suffix   string    `json:"suffix"`
	Decoders []Decoder `json:"decoders"`
}

// Model represents the tokenizer model (WordPiece, BPE, or Unigram).
type Model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"-"`
	Merges                  []string       `json:"-"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	EndOfWordSuffix         string         `json:"end_of_word_suffix"`
	ByteFallback            bool           `json:"byte_fallback"`
}

// UnmarshalJSON implements json.Unmarshaler: the vocabulary is a map for WordPiece and BPE, and
// a list of [piece, score] pairs for Unigram; merges are either "a b" strings or ["a", "b"] pairs.
func (m *Model) UnmarshalJSON(data []byte) error {
	type plainModel Model
	var aux struct {
		plainModel
		Vocab  json.RawMessage   `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Model(aux.plainModel)
	m.Vocab = make(map[string]int)
	if len(aux.Vocab) > 0 && aux.Vocab[0] == '[' {
		var pieces [][]json.RawMessage
		if err := json.Unmarshal(aux.Vocab, &pieces); err != nil {
			return errors.Wrap(err, "failed to parse Unigram vocab")
		}
		for id, piece := range pieces {
			if len(piece) == 0 {
				continue
			}
			var token string
			if err := json.Unmarshal(piece[0], &token); err != nil {
				return errors.Wrapf(err, "failed to parse Unigram vocab entry %d", id)
			}
			m.Vocab[token] = id
		}
	} else if len(aux.Vocab) > 0 && string(aux.Vocab) != "null" {
		if err := json.Unmarshal(aux.Vocab, &m.Vocab); err != nil {
			return errors.Wrap(err, "failed to parse vocab")
		}
	}
	for _, raw := range aux.Merges {
		var merge string
		if err := json.Unmarshal(raw, &merge); err == nil {
			m.Merges = append(m.Merges, merge)
			continue
		}
		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return errors.Errorf("invalid merge %s", raw)
		}
		m.Merges = append(m.Merges, pair[0]+" "+pair[1])
	}
	return nil
}

// Tokenizer implements the api.Tokenizer and api.WordTokenizer interfaces for HuggingFace
// tokenizer.json files. It is safe for concurrent use.
type Tokenizer struct {
	config     *api.Config
	tokenizer  *TokenizerJSON
	idToToken  map[int]string
	mergeRanks map[string]int // For BPE: maps "token1 token2" to merge priority

	// Special token IDs, -1 if not defined.
	unkID  int
	padID  int
	bosID  int
	eosID  int
	clsID  int
	sepID  int
	maskID int

	// Added tokens lookup (content -> id)
	addedTokens map[string]int

	template *template
}

// Compile time assert that Tokenizer implements api.WordTokenizer interface.
var _ api.WordTokenizer = &Tokenizer{}

// New creates a HuggingFace tokenizer from the tokenizer.json file.
// It implements a tokenizers.Constructor function signature.
func New(config *api.Config, repo *hub.Repo) (api.WordTokenizer, error) {
	if !repo.HasFile("tokenizer.json") {
		return nil, errors.Errorf("\"tokenizer.json\" file not found in %s", repo)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.json")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.json file")
	}
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
// config is optional (it can be nil), and it is used to resolve special tokens not
// listed in the tokenizer.json. Its do_lower_case applies when tokenizer.json has no normalizer.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	if tj.Normalizer == nil && config != nil && config.DoLowerCase {
		// Slow tokenizers converted to tokenizer.json without a normalizer.
		tj.Normalizer = &Normalizer{Type: "Lowercase"}
	}
	switch tj.Model.Type {
	case "WordPiece", "BPE", "Unigram":
	case "":
		// Old tokenizer.json files omit the type of WordPiece models.
		if tj.Model.ContinuingSubwordPrefix == "" {
			return nil, errors.New("tokenizer.json model has no \"type\"")
		}
		tj.Model.Type = "WordPiece"
	default:
		return nil, errors.Errorf("tokenizer.json model type %q not supported", tj.Model.Type)
	}

	t := &Tokenizer{
		config:      config,
		tokenizer:   &tj,
		idToToken:   make(map[int]string, len(tj.Model.Vocab)+len(tj.AddedTokens)),
		addedTokens: make(map[string]int, len(tj.AddedTokens)),
		unkID:       -1,
		padID:       -1,
		bosID:       -1,
		eosID:       -1,
		clsID:       -1,
		sepID:       -1,
		maskID:      -1,
	}
	for token, id := range tj.Model.Vocab {
		t.idToToken[id] = token
	}
	for _, at := range tj.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
	}
	if tj.Model.Type == "BPE" {
		t.mergeRanks = make(map[string]int, len(tj.Model.Merges))
		for i, merge := range tj.Model.Merges {
			t.mergeRanks[merge] = i
		}
	}
	t.resolveSpecialTokens()

	tmpl, err := t.buildTemplate(tj.PostProcessor)
	if err != nil {
		return nil, err
	}
	t.template = tmpl
	return t, nil
}

// resolveSpecialTokens maps special tokens from the added tokens, and then from config, to their IDs.
func (t *Tokenizer) resolveSpecialTokens() {
	if t.tokenizer.Model.UnkToken != "" {
		if id, ok := t.TokenToID(t.tokenizer.Model.UnkToken); ok {
			t.unkID = id
		}
	}
	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			t.unkID = at.ID
		case "[PAD]", "<pad>":
			t.padID = at.ID
		case "[CLS]":
			t.clsID = at.ID
		case "[SEP]":
			t.sepID = at.ID
		case "<s>":
			t.bosID = at.ID
		case "</s>":
			t.eosID = at.ID
		case "[MASK]", "<mask>":
			t.maskID = at.ID
		}
	}

	if t.config == nil {
		return
	}
	for _, s := range []struct {
		token string
		id    *int
	}{
		{t.config.UnkToken, &t.unkID},
		{t.config.PadToken, &t.padID},
		{t.config.ClsToken, &t.clsID},
		{t.config.SepToken, &t.sepID},
		{t.config.MaskToken, &t.maskID},
		{t.config.BosToken, &t.bosID},
		{t.config.EosToken, &t.eosID},
	} {
		if s.token == "" {
			continue
		}
		if id, ok := t.TokenToID(s.token); ok {
			*s.id = id
		}
	}
}

// Encode converts text to a sequence of token IDs, without special tokens.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, word := range t.preTokenize(t.normalize(text), true) {
		for _, token := range t.tokenizeWord(word) {
			ids = append(ids, t.tokenID(token))
		}
	}
	return ids
}

// EncodeWords tokenizes a sentence given as a list of words and adds the post-processor special
// tokens (for BERT: [CLS] at the start and [SEP] at the end).
//
// Each word is normalized and pre-tokenized on its own, so punctuation split out of a word by
// the pre-tokenizer still maps to that word. Words that produce no token (e.g. only
// whitespace) don't appear in WordIDs.
func (t *Tokenizer) EncodeWords(words []string) api.WordEncoding {
	var enc api.WordEncoding
	t.template.appendPrefix(&enc)
	for wordIdx, word := range words {
		for _, piece := range t.preTokenize(t.normalize(word), wordIdx == 0) {
			for _, token := range t.tokenizeWord(piece) {
				enc.IDs = append(enc.IDs, t.tokenID(token))
				enc.Tokens = append(enc.Tokens, token)
				enc.WordIDs = append(enc.WordIDs, align.Word(wordIdx))
				enc.SpecialTokensMask = append(enc.SpecialTokensMask, false)
			}
		}
	}
	t.template.appendSuffix(&enc)
	return enc
}

// tokenID returns the id of a token produced by tokenizeWord, or the unknown token id.
func (t *Tokenizer) tokenID(token string) int {
	if id, ok := t.TokenToID(token); ok {
		return id
	}
	return t.unkID
}

// tokenizeWord tokenizes a single pre-tokenized word according to the model type.
func (t *Tokenizer) tokenizeWord(word string) []string {
	if _, ok := t.addedTokens[word]; ok {
		return []string{word}
	}
	switch t.tokenizer.Model.Type {
	case "WordPiece":
		return t.wordPieceTokenize(word)
	case "BPE":
		return t.bpeTokenize(word)
	default:
		return t.unigramTokenize(word)
	}
}

// unkToken returns the unknown token as a one-element slice, or nil if there isn't one.
func (t *Tokenizer) unkToken() []string {
	if t.unkID < 0 {
		return nil
	}
	return []string{t.idToToken[t.unkID]}
}

// Decode converts a sequence of token IDs back to text. Special tokens are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	special := make(map[int]bool)
	for _, at := range t.tokenizer.AddedTokens {
		if at.Special {
			special[at.ID] = true
		}
	}
	var tokens []string
	for _, id := range ids {
		if special[id] {
			continue
		}
		if token, ok := t.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}
	return t.decodeTokens(tokens)
}

// decodeTokens joins tokens according to the decoder type.
func (t *Tokenizer) decodeTokens(tokens []string) string {
	decoderType := ""
	if t.tokenizer.Decoder != nil {
		decoderType = t.tokenizer.Decoder.Type
	}
	switch decoderType {
	case "ByteLevel":
		return byteLevelDecode(strings.Join(tokens, ""))
	case "Metaspace":
		return strings.TrimLeft(strings.ReplaceAll(strings.Join(tokens, ""), metaspace, " "), " ")
	case "BPEDecoder":
		suffix := t.tokenizer.Model.EndOfWordSuffix
		var sb strings.Builder
		for i, token := range tokens {
			if suffix != "" && strings.HasSuffix(token, suffix) {
				sb.WriteString(strings.TrimSuffix(token, suffix))
				if i < len(tokens)-1 {
					sb.WriteString(" ")
				}
			} else {
				sb.WriteString(token)
			}
		}
		return sb.String()
	default:
		prefix := t.continuingSubwordPrefix()
		if t.tokenizer.Decoder != nil && t.tokenizer.Decoder.Prefix != "" {
			prefix = t.tokenizer.Decoder.Prefix
		}
		var sb strings.Builder
		for i, token := range tokens {
			if strings.HasPrefix(token, prefix) {
				sb.WriteString(strings.TrimPrefix(token, prefix))
				continue
			}
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(token)
		}
		return sb.String()
	}
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		if t.unkID >= 0 {
			return t.unkID, nil
		}
	case api.TokPad:
		if t.padID >= 0 {
			return t.padID, nil
		}
	case api.TokBeginningOfSentence:
		if t.bosID >= 0 {
			return t.bosID, nil
		}
		// Fall back to CLS for BERT-style models
		if t.clsID >= 0 {
			return t.clsID, nil
		}
	case api.TokEndOfSentence:
		if t.eosID >= 0 {
			return t.eosID, nil
		}
		// Fall back to SEP for BERT-style models
		if t.sepID >= 0 {
			return t.sepID, nil
		}
	case api.TokMask:
		if t.maskID >= 0 {
			return t.maskID, nil
		}
	case api.TokClassification:
		if t.clsID >= 0 {
			return t.clsID, nil
		}
		if t.bosID >= 0 {
			return t.bosID, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// VocabSize returns the size of the vocabulary, including added tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToToken)
}

// ModelType returns the model type (WordPiece, BPE, Unigram).
func (t *Tokenizer) ModelType() string {
	return t.tokenizer.Model.Type
}

// TokenToID converts a token string to its ID.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.tokenizer.Model.Vocab[token]
	return id, ok
}

// IDToToken converts a token ID to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// AddedTokensList returns the list of added tokens sorted by ID.
func (t *Tokenizer) AddedTokensList() []AddedToken {
	result := make([]AddedToken, len(t.tokenizer.AddedTokens))
	copy(result, t.tokenizer.AddedTokens)
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
