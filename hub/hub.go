// Package hub gives read access to HuggingFace Hub repositories: models and datasets.
//
// Files are downloaded to a local cache, shared with other processes using the same cache
// directory, and downloaded only once.
//
// Example:
//
//	repo := hub.New("bert-base-cased").WithAuth(os.Getenv("HF_TOKEN"))
//	tokenizerPath, err := repo.DownloadFile("tokenizer.json")
//
//	dataset := hub.New("eriktks/conll2003").WithType(hub.RepoTypeDataset).WithRevision("refs/convert/parquet")
//	for fileName, err := range dataset.IterFileNames() { ... }
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gomlx/conll-ner/internal/downloader"
	"github.com/gomlx/conll-ner/internal/files"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// RepoType of a HuggingFace repository.
type RepoType string

const (
	RepoTypeModel   RepoType = "model"
	RepoTypeDataset RepoType = "dataset"
)

const (
	// DefaultEndpoint is the HuggingFace Hub URL. It can be overridden with $HF_ENDPOINT.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision used when none is given.
	DefaultRevision = "main"

	// DefaultDirCreationPerm is used when creating cache directories.
	DefaultDirCreationPerm = 0755
)

// Repo is a HuggingFace Hub repository, identified by its ID ("owner/name", or just "name" for
// some legacy models), type and revision.
//
// Configure it with the With* methods before first use. After that it is safe for concurrent use.
type Repo struct {
	ID       string
	repoType RepoType
	revision string
	endpoint string
	cacheDir string

	authToken string

	// MaxParallelDownload is the maximum number of files downloaded in parallel by DownloadFiles.
	MaxParallelDownload int

	// Verbosity: if > 0, progress of downloads is logged.
	Verbosity int

	muDownload      sync.Mutex
	downloadManager *downloader.Manager
	muInfo          sync.Mutex
	info            *repoInfo
}

// New creates a reference to the model repository with the given ID, at the "main" revision.
//
// The cache directory defaults to DefaultCacheDir and the authentication token to $HF_TOKEN.
// Nothing is fetched until files are listed or downloaded.
func New(id string) *Repo {
	endpoint := os.Getenv("HF_ENDPOINT")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Repo{
		ID:                  id,
		repoType:            RepoTypeModel,
		revision:            DefaultRevision,
		endpoint:            strings.TrimSuffix(endpoint, "/"),
		cacheDir:            DefaultCacheDir(),
		authToken:           os.Getenv("HF_TOKEN"),
		MaxParallelDownload: downloader.DefaultMaxParallel,
	}
}

// DefaultCacheDir returns $HF_HUB_CACHE if set, else $HF_HOME/hub, else ~/.cache/huggingface/hub.
func DefaultCacheDir() string {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return dir
	}
	if home := os.Getenv("HF_HOME"); home != "" {
		return filepath.Join(home, "hub")
	}
	dir, err := files.ReplaceTildeInDir("~/.cache/huggingface/hub")
	if err != nil {
		return filepath.Join(os.TempDir(), "huggingface", "hub")
	}
	return dir
}

// WithAuth sets the authentication token used to access private or gated repositories.
// An empty token disables authentication.
func (r *Repo) WithAuth(authToken string) *Repo {
	r.muDownload.Lock()
	r.authToken = authToken
	r.downloadManager = nil
	r.muDownload.Unlock()
	return r
}

// WithType sets the repository type, RepoTypeModel by default.
func (r *Repo) WithType(repoType RepoType) *Repo {
	r.repoType = repoType
	r.resetInfo()
	return r
}

// WithRevision sets the revision: a branch name, tag, commit hash or a ref like "refs/convert/parquet".
func (r *Repo) WithRevision(revision string) *Repo {
	r.revision = revision
	r.resetInfo()
	return r
}

// WithCacheDir sets the local directory where files are cached. A leading "~" is replaced by
// the user's home directory.
func (r *Repo) WithCacheDir(cacheDir string) *Repo {
	dir, err := files.ReplaceTildeInDir(cacheDir)
	if err != nil {
		klog.Warningf("hub: using cache dir %q as is: %v", cacheDir, err)
		dir = cacheDir
	}
	r.cacheDir = dir
	return r
}

// WithEndpoint sets the Hub URL, DefaultEndpoint by default. Used for mirrors and testing.
func (r *Repo) WithEndpoint(endpoint string) *Repo {
	r.endpoint = strings.TrimSuffix(endpoint, "/")
	r.resetInfo()
	return r
}

// Type of the repository.
func (r *Repo) Type() RepoType { return r.repoType }

// Revision of the repository.
func (r *Repo) Revision() string { return r.revision }

// String implements fmt.Stringer.
func (r *Repo) String() string {
	return fmt.Sprintf("%s %s@%s", r.repoType, r.ID, r.revision)
}

func (r *Repo) resetInfo() {
	r.muInfo.Lock()
	r.info = nil
	r.muInfo.Unlock()
}

// repoInfo is the subset of the Hub's repository info API response that we use.
type repoInfo struct {
	ID       string `json:"id"`
	SHA      string `json:"sha"`
	Siblings []struct {
		Name string `json:"rfilename"`
	} `json:"siblings"`
}

// apiURL returns the URL of the repository info API for the current revision.
func (r *Repo) apiURL() string {
	return fmt.Sprintf("%s/api/%ss/%s/revision/%s", r.endpoint, r.repoType, r.ID, url.PathEscape(r.revision))
}

// FileURL returns the URL used to download the file at the current revision.
func (r *Repo) FileURL(fileName string) string {
	prefix := ""
	if r.repoType != RepoTypeModel {
		prefix = string(r.repoType) + "s/"
	}
	return fmt.Sprintf("%s/%s%s/resolve/%s/%s", r.endpoint, prefix, r.ID, url.PathEscape(r.revision), fileName)
}

// repoCacheDir returns the local directory holding the files of the current revision.
func (r *Repo) repoCacheDir() string {
	name := string(r.repoType) + "s--" + strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(r.cacheDir, name, strings.ReplaceAll(r.revision, "/", "--"))
}

// LocalPath returns where fileName is (or will be) stored in the cache.
func (r *Repo) LocalPath(fileName string) string {
	return filepath.Join(r.repoCacheDir(), filepath.FromSlash(path.Clean(fileName)))
}

// fetchInfo retrieves (and caches in memory) the repository info.
func (r *Repo) fetchInfo(ctx context.Context) (*repoInfo, error) {
	r.muInfo.Lock()
	defer r.muInfo.Unlock()
	if r.info != nil {
		return r.info, nil
	}
	dm := r.getDownloadManager()
	req, err := dm.NewRequest(ctx, r.apiURL())
	if err != nil {
		return nil, err
	}
	resp, err := dm.Do(req)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to retrieve info for %s", r)
	}
	defer func() { _ = resp.Body.Close() }()
	info := &repoInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse info for %s", r)
	}
	r.info = info
	return info, nil
}

// IterFileNames iterates over the file names (paths relative to the repository root) of the repository.
// In case of error it yields ("", err) once and stops.
func (r *Repo) IterFileNames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		info, err := r.fetchInfo(context.Background())
		if err != nil {
			yield("", err)
			return
		}
		for _, sibling := range info.Siblings {
			if !yield(sibling.Name, nil) {
				return
			}
		}
	}
}

// HasFile reports whether the repository has fileName. It returns false if the repository info
// can't be retrieved.
func (r *Repo) HasFile(fileName string) bool {
	for name, err := range r.IterFileNames() {
		if err != nil {
			klog.Warningf("hub: can't list files of %s: %v", r, err)
			return false
		}
		if name == fileName {
			return true
		}
	}
	return false
}

// DownloadFile downloads fileName to the cache, if not there yet, and returns its local path.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileContext(context.Background(), fileName)
}

// DownloadFileContext is like DownloadFile, but the download can be interrupted with ctx.
func (r *Repo) DownloadFileContext(ctx context.Context, fileName string) (string, error) {
	localPath := r.LocalPath(fileName)
	var progress downloader.ProgressCallback
	if r.Verbosity > 0 {
		progress = func(downloaded, total int64) {
			klog.V(1).Infof("hub: %s: %d of %d bytes", fileName, downloaded, total)
		}
	}
	if err := r.lockedDownload(ctx, r.FileURL(fileName), localPath, false, progress); err != nil {
		return "", errors.WithMessagef(err, "downloading %q from %s", fileName, r)
	}
	return localPath, nil
}

// DownloadFiles downloads the given files in parallel (up to MaxParallelDownload at a time),
// and returns their local paths in the same order.
func (r *Repo) DownloadFiles(ctx context.Context, fileNames ...string) ([]string, error) {
	localPaths := make([]string, len(fileNames))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.MaxParallelDownload, 1))
	for ii, fileName := range fileNames {
		g.Go(func() error {
			localPath, err := r.DownloadFileContext(ctx, fileName)
			if err != nil {
				return err
			}
			localPaths[ii] = localPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return localPaths, nil
}
