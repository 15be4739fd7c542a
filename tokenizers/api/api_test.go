package api

import (
	"testing"

	"github.com/gomlx/conll-ner/align"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	content := []byte(`{
		"tokenizer_class": "BertTokenizer",
		"do_lower_case": false,
		"model_max_length": 512,
		"cls_token": "[CLS]",
		"sep_token": {"content": "[SEP]", "lstrip": false},
		"pad_token": "[PAD]",
		"bos_token": null,
		"add_eos_token": false
	}`)
	config, err := ParseConfig(content)
	require.NoError(t, err)
	assert.Equal(t, "BertTokenizer", config.TokenizerClass)
	assert.Equal(t, 512, config.ModelMaxLength)
	assert.Equal(t, "[CLS]", config.ClsToken)
	assert.Equal(t, "[SEP]", config.SepToken)
	assert.Equal(t, "[PAD]", config.PadToken)
	assert.Empty(t, config.BosToken)
	assert.Nil(t, config.AddBosToken)
	require.NotNil(t, config.AddEosToken)
	assert.False(t, *config.AddEosToken)

	// transformers' VERY_LARGE_INTEGER means "no limit".
	config, err = ParseConfig([]byte(`{"model_max_length": 1000000000000000019884624838656}`))
	require.NoError(t, err)
	assert.Zero(t, config.ModelMaxLength)

	_, err = ParseConfig([]byte(`{"cls_token": 12}`))
	assert.Error(t, err)
}

func TestSpecialTokenString(t *testing.T) {
	assert.Equal(t, "pad", TokPad.String())
	assert.Equal(t, "classification", TokClassification.String())
	assert.Equal(t, "SpecialToken(invalid)", SpecialToken(-1).String())
}

func newTestEncoding() WordEncoding {
	// [CLS] la ##mb is [SEP]
	return WordEncoding{
		IDs:               []int{101, 10, 11, 12, 102},
		Tokens:            []string{"[CLS]", "la", "##mb", "is", "[SEP]"},
		WordIDs:           []align.WordID{align.NoWord, align.Word(0), align.Word(0), align.Word(1), align.NoWord},
		SpecialTokensMask: []bool{true, false, false, false, true},
	}
}

func TestTruncate(t *testing.T) {
	enc := newTestEncoding()
	assert.Equal(t, enc, Truncate(enc, 0))
	assert.Equal(t, enc, Truncate(enc, 5))
	assert.Equal(t, enc, Truncate(enc, 10))

	got := Truncate(enc, 4)
	assert.Equal(t, []int{101, 10, 11, 102}, got.IDs)
	assert.Equal(t, []string{"[CLS]", "la", "##mb", "[SEP]"}, got.Tokens)
	assert.Equal(t, []int{-1, 0, 0, -1}, align.WordIDsToInts(got.WordIDs))
	assert.Equal(t, []bool{true, false, false, true}, got.SpecialTokensMask)

	got = Truncate(enc, 1)
	assert.Equal(t, []int{101}, got.IDs)
}
