package conll2003

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/gomlx/conll-ner/hub"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DatasetID is the HuggingFace Hub dataset with CoNLL-2003.
	DatasetID = "eriktks/conll2003"

	// ParquetRevision is the branch where the Hub stores the parquet conversion of datasets.
	ParquetRevision = "refs/convert/parquet"

	// ConfigName is the dataset configuration holding the splits.
	ConfigName = "conll2003"
)

// NewRepo returns the Hub repository of the parquet conversion of CoNLL-2003.
func NewRepo() *hub.Repo {
	return hub.New(DatasetID).WithType(hub.RepoTypeDataset).WithRevision(ParquetRevision)
}

// SplitFiles lists the parquet files of the split in repo, in order.
// Large splits are sharded as "conll2003/train/0000.parquet", "conll2003/train/0001.parquet", ...
func SplitFiles(repo *hub.Repo, split Split) ([]string, error) {
	prefix := path.Join(ConfigName, string(split)) + "/"
	var fileNames []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, errors.WithMessagef(err, "listing files of %s", repo)
		}
		if strings.HasPrefix(fileName, prefix) && strings.HasSuffix(fileName, ".parquet") {
			fileNames = append(fileNames, fileName)
		}
	}
	if len(fileNames) == 0 {
		return nil, errors.Errorf("no parquet files for split %q in %s", split, repo)
	}
	sort.Strings(fileNames)
	return fileNames, nil
}

// Download downloads (or reuses from the cache) the parquet files of the split and reads them.
func Download(ctx context.Context, repo *hub.Repo, split Split) ([]Example, error) {
	fileNames, err := SplitFiles(repo, split)
	if err != nil {
		return nil, err
	}
	localPaths, err := repo.DownloadFiles(ctx, fileNames...)
	if err != nil {
		return nil, errors.WithMessagef(err, "downloading split %q", split)
	}
	var examples []Example
	for _, localPath := range localPaths {
		shard, err := ReadParquet(localPath)
		if err != nil {
			return nil, err
		}
		examples = append(examples, shard...)
	}
	klog.V(1).Infof("CoNLL-2003 %s: %d examples from %d file(s)", split, len(examples), len(localPaths))
	return examples, nil
}
