// Package checkpoint checks that a fine-tuned token classification checkpoint uses the expected
// tag vocabulary.
//
// The vocabulary of a checkpoint is stored in its config.json (id2label and label2id), and its
// size is also the first dimension of the classification head weights. A checkpoint trained
// with a different tag order produces predictions that decode to the wrong tags, so the order
// must match exactly.
//
// Example:
//
//	ckpt, err := checkpoint.Load(hub.New("dslim/bert-base-NER"))
//	if err != nil { ... }
//	if err := ckpt.Verify(labels.CoNLL2003()); err != nil { ... }
package checkpoint

import (
	"encoding/json"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gomlx/conll-ner/hub"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	ConfigFile        = "config.json"
	SafetensorsFile   = "model.safetensors"
	SafetensorsIndex  = "model.safetensors.index.json"
	safetensorsSuffix = ".safetensors"
)

// ClassifierWeights lists the names used for the classification head weights, in order of preference.
var ClassifierWeights = []string{"classifier.weight", "score.weight"}

// Config holds the fields of a model config.json used here.
type Config struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
}

// Checkpoint is the metadata of a fine-tuned model: its config and the header of the
// safetensors file holding the classification head.
type Checkpoint struct {
	Repo   *hub.Repo
	Config Config

	vocab *labels.Vocabulary

	// weightsFile is the local path of the safetensors file with the classification head, or
	// "" if the checkpoint has no safetensors weights.
	weightsFile string
	header      *Header
}

// Load downloads config.json and the safetensors file holding the classification head, whose
// header is then read. The whole file is downloaded into the cache. For sharded checkpoints,
// only the shard holding the head is downloaded.
//
// Checkpoints without safetensors weights (e.g. only pytorch_model.bin) are loaded with a
// warning: only their config can be verified.
func Load(repo *hub.Repo) (*Checkpoint, error) {
	configPath, err := repo.DownloadFile(ConfigFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", repo)
	}
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", configPath)
	}
	ckpt := &Checkpoint{Repo: repo}
	if err := json.Unmarshal(content, &ckpt.Config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s of %s", ConfigFile, repo)
	}
	ckpt.vocab, err = labels.FromConfigJSON(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s of %s", ConfigFile, repo)
	}

	weightsName, err := ckpt.findWeightsFile()
	if err != nil {
		return nil, err
	}
	if weightsName == "" {
		klog.Warningf("checkpoint %s has no safetensors weights, only its config can be verified", repo)
		return ckpt, nil
	}
	ckpt.weightsFile, err = repo.DownloadFile(weightsName)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", repo)
	}
	f, err := openSafetensors(ckpt.weightsFile)
	if err != nil {
		return nil, err
	}
	ckpt.header = f.header
	if err := f.Close(); err != nil {
		klog.Warningf("failed to close %s: %v", ckpt.weightsFile, err)
	}
	return ckpt, nil
}

// findWeightsFile returns the name of the safetensors file holding the classification head.
func (c *Checkpoint) findWeightsFile() (string, error) {
	var safetensorsFiles []string
	hasIndex := false
	for fileName, err := range c.Repo.IterFileNames() {
		if err != nil {
			return "", errors.WithMessagef(err, "listing files of %s", c.Repo)
		}
		switch {
		case fileName == SafetensorsIndex:
			hasIndex = true
		case strings.HasSuffix(fileName, safetensorsSuffix) && !strings.Contains(fileName, "/"):
			safetensorsFiles = append(safetensorsFiles, fileName)
		}
	}
	if hasIndex {
		return c.shardWithClassifier()
	}
	if slices.Contains(safetensorsFiles, SafetensorsFile) {
		return SafetensorsFile, nil
	}
	if len(safetensorsFiles) > 0 {
		slices.Sort(safetensorsFiles)
		return safetensorsFiles[0], nil
	}
	return "", nil
}

// shardWithClassifier reads the sharded index, and returns the shard with the classification head.
func (c *Checkpoint) shardWithClassifier() (string, error) {
	indexPath, err := c.Repo.DownloadFile(SafetensorsIndex)
	if err != nil {
		return "", errors.WithMessagef(err, "checkpoint %s", c.Repo)
	}
	content, err := os.ReadFile(indexPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", indexPath)
	}
	var index ShardedIndex
	if err := json.Unmarshal(content, &index); err != nil {
		return "", errors.Wrapf(err, "failed to parse %s of %s", SafetensorsIndex, c.Repo)
	}
	for _, name := range ClassifierWeights {
		if shard, found := index.WeightMap[name]; found {
			return path.Clean(shard), nil
		}
	}
	return "", errors.Errorf("%s of %s has none of the classifier weights %v", SafetensorsIndex, c.Repo, ClassifierWeights)
}

// Vocabulary returns the tag vocabulary stored in the checkpoint config.
func (c *Checkpoint) Vocabulary() *labels.Vocabulary {
	return c.vocab
}

// HasWeights reports whether the safetensors header of the classification head was loaded.
func (c *Checkpoint) HasWeights() bool {
	return c.header != nil
}

// classifier returns the metadata of the classification head weights.
func (c *Checkpoint) classifier() (*TensorMetadata, error) {
	for _, name := range ClassifierWeights {
		if meta, found := c.header.Tensors[name]; found {
			return meta, nil
		}
	}
	return nil, errors.Errorf("checkpoint %s has none of the classifier weights %v", c.Repo, ClassifierWeights)
}

// NumClassifierLabels returns the number of outputs of the classification head, the first
// dimension of its weights (shaped [numLabels, hiddenSize]).
func (c *Checkpoint) NumClassifierLabels() (int, error) {
	if c.header == nil {
		return 0, errors.Errorf("checkpoint %s has no safetensors weights", c.Repo)
	}
	meta, err := c.classifier()
	if err != nil {
		return 0, err
	}
	if len(meta.Shape) != 2 {
		return 0, errors.Errorf("classifier weights %s of %s should have rank 2, got shape %v", meta.Name, c.Repo, meta.Shape)
	}
	return meta.Shape[0], nil
}

// Verify checks that the checkpoint uses vocab: the same tag names in the same order, and a
// classification head with one output per tag.
func (c *Checkpoint) Verify(vocab *labels.Vocabulary) error {
	if !c.vocab.Equal(vocab) {
		return errors.Errorf("checkpoint %s has tags %s, expected %s", c.Repo, c.vocab, vocab)
	}
	if c.header == nil {
		return nil
	}
	numLabels, err := c.NumClassifierLabels()
	if err != nil {
		return err
	}
	if numLabels != vocab.Len() {
		return errors.Errorf("checkpoint %s classifier has %d outputs, expected %d tags", c.Repo, numLabels, vocab.Len())
	}
	return nil
}

// ReadTensor reads one of the tensors of the safetensors file holding the classification head,
// e.g. "classifier.bias".
func (c *Checkpoint) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	if c.weightsFile == "" {
		return nil, errors.Errorf("checkpoint %s has no safetensors weights", c.Repo)
	}
	f, err := openSafetensors(c.weightsFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.readTensor(tensorName)
}
