// Package sentencepiece implements a tokenizers.Tokenizer based on SentencePiece tokenizer.
package sentencepiece

import (
	"bytes"
	"os"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/conll-ner/align"
	"github.com/gomlx/conll-ner/hub"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/pkg/errors"
)

// New creates a SentencePiece tokenizer based on the "tokenizer.model" file, which must be a
// SentencePiece Model proto.
//
// It implements a tokenizers.Constructor function signature.
func New(config *api.Config, repo *hub.Repo) (api.WordTokenizer, error) {
	if !repo.HasFile("tokenizer.model") {
		return nil, errors.Errorf("\"tokenizer.model\" file not found in %s", repo)
	}
	tokenizerFile, err := repo.DownloadFile("tokenizer.model")
	if err != nil {
		return nil, errors.Wrapf(err, "can't download tokenizer.model file")
	}
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile creates a SentencePiece tokenizer from a local "tokenizer.model" file.
//
// config is optional. Its bos_token, eos_token and pad_token name the control pieces used as
// special tokens, falling back to "<s>", "</s>" and then "<bos>", "<eos>", "<pad>".
// Its add_bos_token and add_eos_token select the special tokens EncodeWords adds.
// By default, it adds the beginning-of-sentence token only, if the model defines one.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read sentencepiece model")
	}
	proc, err := esentencepiece.NewProcessor(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer")
	}
	pieces, err := readPieces(content)
	if err != nil {
		return nil, err
	}
	var bosToken, eosToken, padToken string
	if config != nil {
		bosToken, eosToken, padToken = config.BosToken, config.EosToken, config.PadToken
	}
	info := proc.ModelInfo()
	info.BeginningOfSentenceID = controlID(pieces, bosToken, "<s>", "<bos>")
	info.EndOfSentenceID = controlID(pieces, eosToken, "</s>", "<eos>")
	info.PadID = controlID(pieces, padToken, "<pad>")
	t := &Tokenizer{
		Processor: proc,
		Info:      info,
		pieces:    pieces,
		addBOS:    info.BeginningOfSentenceID >= 0,
	}
	if config != nil {
		if config.AddBosToken != nil {
			t.addBOS = *config.AddBosToken && info.BeginningOfSentenceID >= 0
		}
		if config.AddEosToken != nil {
			t.addEOS = *config.AddEosToken && info.EndOfSentenceID >= 0
		}
	}
	return t, nil
}

// Tokenizer implements tokenizers.Tokenizer interface based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	pieces         []piece
	addBOS, addEOS bool
}

// Compile time assert that sentencepiece.Tokenizer implements api.WordTokenizer interface.
var _ api.WordTokenizer = &Tokenizer{}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) int { return t.ID })
}

// EncodeWords encodes each word separately, as if the words were joined by spaces: words after
// the first one start with the "▁" space marker.
func (p *Tokenizer) EncodeWords(words []string) api.WordEncoding {
	var enc api.WordEncoding
	if p.addBOS {
		p.appendSpecial(&enc, p.Info.BeginningOfSentenceID)
	}
	for wordIdx, word := range words {
		text := word
		if wordIdx > 0 {
			text = " " + word
		}
		for _, tok := range p.Processor.Encode(text) {
			enc.IDs = append(enc.IDs, tok.ID)
			enc.Tokens = append(enc.Tokens, tok.Text)
			enc.WordIDs = append(enc.WordIDs, align.Word(wordIdx))
			enc.SpecialTokensMask = append(enc.SpecialTokensMask, false)
		}
	}
	if p.addEOS {
		p.appendSpecial(&enc, p.Info.EndOfSentenceID)
	}
	return enc
}

func (p *Tokenizer) appendSpecial(enc *api.WordEncoding, id int) {
	enc.IDs = append(enc.IDs, id)
	enc.Tokens = append(enc.Tokens, p.pieces[id].text)
	enc.WordIDs = append(enc.WordIDs, align.NoWord)
	enc.SpecialTokensMask = append(enc.SpecialTokensMask, true)
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence, api.TokClassification:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not defined in the model", token)
	}
	return id, nil
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
