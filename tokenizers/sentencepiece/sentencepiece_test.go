package sentencepiece

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/conll-ner/align"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type testPiece struct {
	piece     string
	score     float32
	pieceType pieceType
}

var testPieces = []testPiece{
	{"<unk>", 0, pieceUnknown},
	{"<s>", 0, pieceControl},
	{"</s>", 0, pieceControl},
	{"▁", -1, pieceNormal},
	{"E", -2, pieceNormal},
	{"U", -2, pieceNormal},
	{"EU", -3, pieceNormal},
	{"c", -2, pieceNormal},
	{"a", -2, pieceNormal},
	{"l", -2, pieceNormal},
	{"▁c", -4, pieceNormal},
	{"▁ca", -5, pieceNormal},
	{"▁cal", -6, pieceNormal},
	{"▁call", -7, pieceNormal},
}

// writeTestModel writes a tiny BPE SentencePiece model, encoding the ModelProto by hand.
func writeTestModel(t *testing.T) string {
	var model []byte
	for _, p := range testPieces {
		var piece []byte
		piece = protowire.AppendTag(piece, 1, protowire.BytesType)
		piece = protowire.AppendString(piece, p.piece)
		piece = protowire.AppendTag(piece, 2, protowire.Fixed32Type)
		piece = protowire.AppendFixed32(piece, math.Float32bits(p.score))
		piece = protowire.AppendTag(piece, 3, protowire.VarintType)
		piece = protowire.AppendVarint(piece, uint64(p.pieceType))
		model = protowire.AppendTag(model, 1, protowire.BytesType)
		model = protowire.AppendBytes(model, piece)
	}

	var trainer []byte
	for _, field := range []struct {
		num   protowire.Number
		value uint64
	}{
		{3, 2},  // model_type: BPE
		{40, 0}, // unk_id
		{41, 1}, // bos_id
		{42, 2}, // eos_id
	} {
		trainer = protowire.AppendTag(trainer, field.num, protowire.VarintType)
		trainer = protowire.AppendVarint(trainer, field.value)
	}
	model = protowire.AppendTag(model, 2, protowire.BytesType)
	model = protowire.AppendBytes(model, trainer)

	var normalizer []byte
	normalizer = protowire.AppendTag(normalizer, 1, protowire.BytesType)
	normalizer = protowire.AppendString(normalizer, "identity")
	normalizer = protowire.AppendTag(normalizer, 3, protowire.VarintType) // add_dummy_prefix
	normalizer = protowire.AppendVarint(normalizer, 0)
	normalizer = protowire.AppendTag(normalizer, 4, protowire.VarintType) // remove_extra_whitespaces
	normalizer = protowire.AppendVarint(normalizer, 0)
	normalizer = protowire.AppendTag(normalizer, 5, protowire.VarintType) // escape_whitespaces
	normalizer = protowire.AppendVarint(normalizer, 1)
	model = protowire.AppendTag(model, 3, protowire.BytesType)
	model = protowire.AppendBytes(model, normalizer)

	filePath := filepath.Join(t.TempDir(), "tokenizer.model")
	require.NoError(t, os.WriteFile(filePath, model, 0644))
	return filePath
}

func TestEncode(t *testing.T) {
	tok, err := NewFromFile(nil, writeTestModel(t))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 13}, tok.Encode("EU call"))
	assert.Equal(t, "EU call", tok.Decode([]int{6, 13}))
}

func TestEncodeWords(t *testing.T) {
	modelPath := writeTestModel(t)
	words := []string{"EU", "call", "la"}

	tok, err := NewFromFile(nil, modelPath)
	require.NoError(t, err)
	enc := tok.EncodeWords(words)
	assert.Equal(t, []int{1, 6, 13, 3, 9, 8}, enc.IDs)
	assert.Equal(t, []int{-1, 0, 1, 2, 2, 2}, align.WordIDsToInts(enc.WordIDs))
	assert.Equal(t, []bool{true, false, false, false, false, false}, enc.SpecialTokensMask)
	assert.Equal(t, []string{"<s>", "EU", "▁call", "▁", "l", "a"}, enc.Tokens)

	yes, no := true, false
	tok, err = NewFromFile(&api.Config{AddBosToken: &no, AddEosToken: &yes}, modelPath)
	require.NoError(t, err)
	enc = tok.EncodeWords(words)
	assert.Equal(t, []int{6, 13, 3, 9, 8, 2}, enc.IDs)
	assert.Equal(t, []int{0, 1, 2, 2, 2, -1}, align.WordIDsToInts(enc.WordIDs))
	assert.Equal(t, "</s>", enc.Tokens[len(enc.Tokens)-1])

	labels, err := align.Labels([]int{3, 0, 1}, enc.WordIDs)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 1, 2, 2, -100}, labels)
}

func TestSpecialTokenID(t *testing.T) {
	tok, err := NewFromFile(nil, writeTestModel(t))
	require.NoError(t, err)

	id, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	id, err = tok.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	id, err = tok.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	// No pad token in the model.
	_, err = tok.SpecialTokenID(api.TokPad)
	assert.Error(t, err)
	_, err = tok.SpecialTokenID(api.TokMask)
	assert.Error(t, err)
}

func TestSpecialTokensFromConfig(t *testing.T) {
	modelPath := writeTestModel(t)
	testCases := []struct {
		name           string
		config         *api.Config
		wantBOS        int
		wantEOS        int
		wantFirstToken string
	}{
		{"default", &api.Config{}, 1, 2, "<s>"},
		{"control pieces named by config", &api.Config{BosToken: "</s>", EosToken: "<s>"}, 2, 1, "</s>"},
		{"normal piece is not special", &api.Config{BosToken: "EU", EosToken: "<mask>"}, 1, 2, "<s>"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := NewFromFile(tc.config, modelPath)
			require.NoError(t, err)
			id, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBOS, id)
			id, err = tok.SpecialTokenID(api.TokEndOfSentence)
			require.NoError(t, err)
			assert.Equal(t, tc.wantEOS, id)
			enc := tok.EncodeWords([]string{"EU"})
			assert.Equal(t, []int{tc.wantBOS, 6}, enc.IDs)
			assert.Equal(t, tc.wantFirstToken, enc.Tokens[0])
		})
	}
}

func TestReadPieces(t *testing.T) {
	content, err := os.ReadFile(writeTestModel(t))
	require.NoError(t, err)
	pieces, err := readPieces(content)
	require.NoError(t, err)
	require.Len(t, pieces, len(testPieces))
	for id, want := range testPieces {
		assert.Equal(t, piece{text: want.piece, typ: want.pieceType}, pieces[id], "piece %d", id)
	}
	assert.Equal(t, 1, controlID(pieces, "", "<s>", "<bos>"))
	assert.Equal(t, -1, controlID(pieces, "<bos>", "EU"))

	// Piece field with a length past the end of the content.
	_, err = readPieces([]byte{0x0a, 0x20, 0x0a})
	assert.Error(t, err)
}

func TestNewFromFileErrors(t *testing.T) {
	_, err := NewFromFile(nil, filepath.Join(t.TempDir(), "missing.model"))
	assert.Error(t, err)
}
