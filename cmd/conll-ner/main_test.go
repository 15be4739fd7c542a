package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/conll-ner/datasets/conll2003"
	"github.com/gomlx/conll-ner/features"
	"github.com/gomlx/conll-ner/internal/config"
	"github.com/gomlx/conll-ner/internal/hubtest"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExample = conll2003.Example{
	ID:        "0",
	Tokens:    []string{"EU", "rejects", "German", "call", "to", "boycott", "British", "lamb", "."},
	POSTags:   []int{22, 42, 16, 21, 35, 37, 16, 21, 7},
	ChunkTags: []int{11, 21, 11, 12, 21, 22, 11, 12, 0},
	NERTags:   []int{3, 0, 7, 0, 0, 0, 7, 0, 0},
}

// runCmd executes the command line tool with args, and returns what it printed.
func runCmd(t *testing.T, args ...string) (string, error) {
	envFile := filepath.Join(t.TempDir(), "empty.env")
	require.NoError(t, os.WriteFile(envFile, nil, 0644))
	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetArgs(append([]string{"--env-file", envFile}, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRenderExample(t *testing.T) {
	rendered, err := renderExample(&testExample, 0)
	require.NoError(t, err)
	for _, want := range []string{"word", "chunk", "EU", "B-ORG", "NNP", "B-NP", "B-MISC", "lamb"} {
		assert.Contains(t, rendered, want)
	}
	assert.Len(t, bytes.Split([]byte(rendered), []byte("\n")), 4)

	// Wrapped into blocks separated by an empty line.
	wrapped, err := renderExample(&testExample, 30)
	require.NoError(t, err)
	assert.Contains(t, wrapped, "\n\n")
	assert.Contains(t, wrapped, "boycott")

	noSyntax := testExample
	noSyntax.POSTags, noSyntax.ChunkTags = nil, nil
	rendered, err = renderExample(&noSyntax, 0)
	require.NoError(t, err)
	assert.Contains(t, rendered, "B-MISC")
	assert.NotContains(t, rendered, "NNP")

	invalid := testExample
	invalid.NERTags = invalid.NERTags[:2]
	_, err = renderExample(&invalid, 0)
	assert.Error(t, err)
}

// datasetRepo returns the parquet conversion of CoNLL-2003 with testExample as its train split.
func datasetRepo(t *testing.T) hubtest.Repo {
	shardPath := filepath.Join(t.TempDir(), "0000.parquet")
	require.NoError(t, conll2003.WriteParquet(shardPath, []conll2003.Example{testExample}))
	shard, err := os.ReadFile(shardPath)
	require.NoError(t, err)
	return hubtest.Repo{
		Type: "dataset", ID: conll2003.DatasetID, Revision: conll2003.ParquetRevision,
		Files: map[string][]byte{"conll2003/train/0000.parquet": shard},
	}
}

func TestShowCmd(t *testing.T) {
	server := hubtest.New(t, datasetRepo(t))
	cacheDir := t.TempDir()

	out, err := runCmd(t, "show", "--endpoint", server.URL, "--cache-dir", cacheDir, "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "train #0")
	assert.Contains(t, out, "rejects")
	assert.Contains(t, out, "B-ORG")

	_, err = runCmd(t, "show", "--endpoint", server.URL, "--cache-dir", cacheDir, "--index", "1")
	assert.Error(t, err)
	_, err = runCmd(t, "show", "--split", "dev")
	assert.Error(t, err)
}

var testTokenizerJSON = []byte(`{
  "normalizer": {"type": "BertNormalizer", "lowercase": false},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "vocab": {"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3, "EU": 4, "rejects": 5, "German": 6,
      "call": 7, "to": 8, "boy": 9, "##cott": 10, "British": 11, "lamb": 12, ".": 13}
  }
}`)

func TestAlignCmd(t *testing.T) {
	t.Setenv("CONLL_NER_MAX_LENGTH", "")
	require.NoError(t, os.Unsetenv("CONLL_NER_MAX_LENGTH"))
	server := hubtest.New(t, datasetRepo(t), hubtest.Repo{ID: "org/bert", Files: map[string][]byte{
		"tokenizer.json":        testTokenizerJSON,
		"tokenizer_config.json": []byte(`{"cls_token": "[CLS]", "sep_token": "[SEP]", "model_max_length": 6}`),
	}})
	cacheDir := t.TempDir()

	testCases := []struct {
		name       string
		args       []string
		wantIDs    []int
		wantLabels []int
	}{
		{
			name:       "model_max_length of the tokenizer",
			wantIDs:    []int{2, 4, 5, 6, 7, 3},
			wantLabels: []int{-100, 3, 0, 7, 0, -100},
		},
		{
			name:       "no truncation",
			args:       []string{"--max-length", "0"},
			wantIDs:    []int{2, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 3},
			wantLabels: []int{-100, 3, 0, 7, 0, 0, 0, 0, 7, 0, 0, -100},
		},
		{
			name:       "flag",
			args:       []string{"--max-length", "8"},
			wantIDs:    []int{2, 4, 5, 6, 7, 8, 9, 3},
			wantLabels: []int{-100, 3, 0, 7, 0, 0, 0, -100},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			outPath := filepath.Join(t.TempDir(), "train.jsonl")
			args := append([]string{"align", "--endpoint", server.URL, "--cache-dir", cacheDir,
				"--model", "org/bert", "--out", outPath}, tc.args...)
			_, err := runCmd(t, args...)
			require.NoError(t, err)

			f, err := os.Open(outPath)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			var feat features.Feature
			require.NoError(t, json.NewDecoder(f).Decode(&feat))
			assert.Equal(t, tc.wantIDs, feat.InputIDs)
			assert.Equal(t, tc.wantLabels, feat.Labels)
			assert.Len(t, feat.AttentionMask, len(tc.wantIDs))
		})
	}
}

func TestResolveMaxLength(t *testing.T) {
	assert.Equal(t, 128, resolveMaxLength(128, &api.Config{ModelMaxLength: 512}))
	assert.Equal(t, 0, resolveMaxLength(0, &api.Config{ModelMaxLength: 512}))
	assert.Equal(t, 512, resolveMaxLength(config.UnsetMaxLength, &api.Config{ModelMaxLength: 512}))
	assert.Equal(t, 0, resolveMaxLength(config.UnsetMaxLength, nil))
}

func TestEvaluateCmd(t *testing.T) {
	predictionsPath := filepath.Join(t.TempDir(), "predictions.jsonl")
	require.NoError(t, os.WriteFile(predictionsPath, []byte(
		`{"predictions": [0, 3, 4, 0], "labels": [-100, 3, 4, -100]}
{"predictions": [1, 0, 5], "labels": [1, 0, 5]}
`), 0644))

	predictions, tokenLabels, err := readPredictions(predictionsPath)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 3, 4, 0}, {1, 0, 5}}, predictions)
	assert.Equal(t, [][]int{{-100, 3, 4, -100}, {1, 0, 5}}, tokenLabels)

	out, err := runCmd(t, "evaluate", "--predictions", predictionsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ORG")
	assert.Contains(t, out, "PER")
	assert.Contains(t, out, "overall")
	assert.Contains(t, out, "1.0000")

	badPath := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"predictions": [0, 1], "labels": [0]}`), 0644))
	_, err = runCmd(t, "evaluate", "--predictions", badPath)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(badPath, []byte(`{"predictions": `), 0644))
	_, _, err = readPredictions(badPath)
	assert.Error(t, err)

	_, err = runCmd(t, "evaluate")
	assert.Error(t, err, "--predictions is required")
}

func TestVerifyCmd(t *testing.T) {
	conllConfig, err := labels.CoNLL2003().ConfigJSON()
	require.NoError(t, err)
	other, err := labels.New("O", "B-PER", "I-PER")
	require.NoError(t, err)
	otherConfig, err := other.ConfigJSON()
	require.NoError(t, err)
	server := hubtest.New(t,
		hubtest.Repo{ID: "org/conll", Files: map[string][]byte{"config.json": conllConfig}},
		hubtest.Repo{ID: "org/other", Files: map[string][]byte{"config.json": otherConfig}},
	)
	cacheDir := t.TempDir()

	out, err := runCmd(t, "verify", "--endpoint", server.URL, "--cache-dir", cacheDir, "--model", "org/conll")
	require.NoError(t, err)
	assert.Contains(t, out, "org/conll: ok")
	assert.Contains(t, out, "config only")

	_, err = runCmd(t, "verify", "--endpoint", server.URL, "--cache-dir", cacheDir, "--model", "org/other")
	assert.Error(t, err)
}
