package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/gomlx/conll-ner/hub"
	"github.com/gomlx/conll-ner/internal/hubtest"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTensor is a float32 tensor to write in a safetensors file.
type testTensor struct {
	name  string
	shape []int
}

// encodeSafetensors creates a safetensors file where the values of each tensor are 0, 1, 2, ...
func encodeSafetensors(t *testing.T, tensorsToWrite ...testTensor) []byte {
	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var data bytes.Buffer
	for _, tt := range tensorsToWrite {
		size := 1
		for _, dim := range tt.shape {
			size *= dim
		}
		start := data.Len()
		for ii := range size {
			require.NoError(t, binary.Write(&data, binary.LittleEndian, math.Float32bits(float32(ii))))
		}
		header[tt.name] = map[string]any{
			"dtype":        "F32",
			"shape":        tt.shape,
			"data_offsets": []int{start, data.Len()},
		}
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(headerJSON))))
	file.Write(headerJSON)
	file.Write(data.Bytes())
	return file.Bytes()
}

func configJSON(t *testing.T, vocab *labels.Vocabulary) []byte {
	content, err := vocab.ConfigJSON()
	require.NoError(t, err)
	var config map[string]any
	require.NoError(t, json.Unmarshal(content, &config))
	config["model_type"] = "bert"
	config["architectures"] = []string{"BertForTokenClassification"}
	content, err = json.Marshal(config)
	require.NoError(t, err)
	return content
}

func TestLoadAndVerify(t *testing.T) {
	conll := labels.CoNLL2003()
	// Same tags as CoNLL-2003, in the order used by some popular checkpoints.
	reordered, err := labels.New("O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC")
	require.NoError(t, err)

	weights := encodeSafetensors(t,
		testTensor{"bert.embeddings.word_embeddings.weight", []int{5, 4}},
		testTensor{"classifier.weight", []int{9, 4}},
		testTensor{"classifier.bias", []int{9}},
	)
	smallHead := encodeSafetensors(t, testTensor{"classifier.weight", []int{5, 4}})
	server := hubtest.New(t,
		hubtest.Repo{ID: "org/conll", Files: map[string][]byte{
			"config.json":       configJSON(t, conll),
			"model.safetensors": weights,
		}},
		hubtest.Repo{ID: "org/reordered", Files: map[string][]byte{
			"config.json":       configJSON(t, reordered),
			"model.safetensors": weights,
		}},
		hubtest.Repo{ID: "org/small-head", Files: map[string][]byte{
			"config.json":       configJSON(t, conll),
			"model.safetensors": smallHead,
		}},
		hubtest.Repo{ID: "org/no-weights", Files: map[string][]byte{
			"config.json":       configJSON(t, conll),
			"pytorch_model.bin": []byte("pickle"),
		}},
	)
	cacheDir := t.TempDir()
	load := func(id string) *Checkpoint {
		ckpt, err := Load(hub.New(id).WithEndpoint(server.URL).WithCacheDir(cacheDir))
		require.NoError(t, err, "loading %s", id)
		return ckpt
	}

	ckpt := load("org/conll")
	assert.Equal(t, "bert", ckpt.Config.ModelType)
	assert.Equal(t, []string{"BertForTokenClassification"}, ckpt.Config.Architectures)
	assert.True(t, ckpt.Vocabulary().Equal(conll))
	assert.True(t, ckpt.HasWeights())
	numLabels, err := ckpt.NumClassifierLabels()
	require.NoError(t, err)
	assert.Equal(t, 9, numLabels)
	assert.NoError(t, ckpt.Verify(conll))
	assert.Error(t, ckpt.Verify(reordered))

	bias, err := ckpt.ReadTensor("classifier.bias")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, bias.DType())
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}, bias.Value())
	_, err = ckpt.ReadTensor("missing")
	assert.Error(t, err)

	err = load("org/reordered").Verify(conll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B-MISC")

	err = load("org/small-head").Verify(conll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 outputs")

	noWeights := load("org/no-weights")
	assert.False(t, noWeights.HasWeights())
	assert.NoError(t, noWeights.Verify(conll))
	_, err = noWeights.NumClassifierLabels()
	assert.Error(t, err)
}

func TestLoadSharded(t *testing.T) {
	conll := labels.CoNLL2003()
	index, err := json.Marshal(ShardedIndex{WeightMap: map[string]string{
		"bert.embeddings.word_embeddings.weight": "model-00001-of-00002.safetensors",
		"classifier.weight":                      "model-00002-of-00002.safetensors",
	}})
	require.NoError(t, err)
	server := hubtest.New(t, hubtest.Repo{ID: "org/sharded", Files: map[string][]byte{
		"config.json":                      configJSON(t, conll),
		"model.safetensors.index.json":     index,
		"model-00001-of-00002.safetensors": encodeSafetensors(t, testTensor{"bert.embeddings.word_embeddings.weight", []int{5, 4}}),
		"model-00002-of-00002.safetensors": encodeSafetensors(t, testTensor{"classifier.weight", []int{9, 4}}),
	}})
	ckpt, err := Load(hub.New("org/sharded").WithEndpoint(server.URL).WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	assert.NoError(t, ckpt.Verify(conll))
	assert.Zero(t, server.Downloads("model-00001-of-00002.safetensors"), "only the shard with the classifier is needed")
	assert.Equal(t, 1, server.Downloads("model-00002-of-00002.safetensors"))
}

func TestLoadErrors(t *testing.T) {
	gappy := []byte(`{"id2label": {"0": "O", "2": "B-PER"}}`)
	server := hubtest.New(t,
		hubtest.Repo{ID: "org/gappy", Files: map[string][]byte{"config.json": gappy}},
		hubtest.Repo{ID: "org/no-config", Files: map[string][]byte{"model.safetensors": []byte("x")}},
		hubtest.Repo{ID: "org/corrupt", Files: map[string][]byte{
			"config.json":       configJSON(t, labels.CoNLL2003()),
			"model.safetensors": {0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, '{', '}'},
		}},
	)
	cacheDir := t.TempDir()
	for _, id := range []string{"org/gappy", "org/no-config", "org/corrupt"} {
		t.Run(id, func(t *testing.T) {
			_, err := Load(hub.New(id).WithEndpoint(server.URL).WithCacheDir(cacheDir))
			assert.Error(t, err)
		})
	}
}

func TestParseHeader(t *testing.T) {
	content := encodeSafetensors(t, testTensor{"classifier.weight", []int{9, 4}})
	header, err := parseHeader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	require.Contains(t, header.Tensors, "classifier.weight")
	meta := header.Tensors["classifier.weight"]
	assert.Equal(t, "classifier.weight", meta.Name)
	assert.Equal(t, []int{9, 4}, meta.Shape)
	assert.Equal(t, [2]int64{0, 144}, meta.DataOffsets)
	assert.Equal(t, "pt", header.Metadata["format"])

	// Offsets past the end of the file.
	truncated := content[:len(content)-4]
	_, err = parseHeader(bytes.NewReader(truncated), int64(len(truncated)))
	assert.Error(t, err)
}
