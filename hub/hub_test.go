package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHub serves the repository info API and file downloads for one repository.
type fakeHub struct {
	server    *httptest.Server
	infoCalls atomic.Int32
	downloads atomic.Int32
	lastAuth  atomic.Value
}

func newFakeHub(t *testing.T, apiPath, filePrefix string, contents map[string]string) *fakeHub {
	fh := &fakeHub{}
	fh.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fh.lastAuth.Store(r.Header.Get("Authorization"))
		path := r.URL.EscapedPath()
		if path == apiPath {
			fh.infoCalls.Add(1)
			_, _ = fmt.Fprint(w, `{"id": "test", "sha": "abc", "siblings": [`)
			first := true
			for name := range contents {
				if !first {
					_, _ = fmt.Fprint(w, ",")
				}
				first = false
				_, _ = fmt.Fprintf(w, `{"rfilename": %q}`, name)
			}
			_, _ = fmt.Fprint(w, `]}`)
			return
		}
		for name, content := range contents {
			if path == filePrefix+name {
				fh.downloads.Add(1)
				_, _ = fmt.Fprint(w, content)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(fh.server.Close)
	return fh
}

func TestModelRepo(t *testing.T) {
	contents := map[string]string{
		"config.json":    `{"model_type": "bert"}`,
		"tokenizer.json": `{"model": {}}`,
	}
	fh := newFakeHub(t, "/api/models/org/model/revision/main", "/org/model/resolve/main/", contents)
	repo := New("org/model").WithEndpoint(fh.server.URL).WithCacheDir(t.TempDir()).WithAuth("secret")

	assert.True(t, repo.HasFile("config.json"))
	assert.False(t, repo.HasFile("vocab.txt"))

	var names []string
	for name, err := range repo.IterFileNames() {
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"config.json", "tokenizer.json"}, names)
	assert.Equal(t, int32(1), fh.infoCalls.Load(), "repo info should be fetched only once")

	localPath, err := repo.DownloadFile("config.json")
	require.NoError(t, err)
	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, contents["config.json"], string(content))
	assert.Equal(t, "Bearer secret", fh.lastAuth.Load())

	// Second download is served from the cache.
	localPath2, err := repo.DownloadFile("config.json")
	require.NoError(t, err)
	assert.Equal(t, localPath, localPath2)
	assert.Equal(t, int32(1), fh.downloads.Load())

	// No leftovers from the download.
	entries, err := os.ReadDir(filepath.Dir(localPath))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".downloading")
		assert.NotContains(t, entry.Name(), ".lock")
	}

	_, err = repo.DownloadFile("missing.bin")
	assert.Error(t, err)
}

func TestWithAuthConcurrent(t *testing.T) {
	contents := map[string]string{"config.json": `{}`}
	fh := newFakeHub(t, "/api/models/org/model/revision/main", "/org/model/resolve/main/", contents)
	repo := New("org/model").WithEndpoint(fh.server.URL).WithCacheDir(t.TempDir())
	require.True(t, repo.HasFile("config.json"))

	var wg sync.WaitGroup
	for ii := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			repo.WithAuth(fmt.Sprintf("token-%d", ii))
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, repo.getDownloadManager())
		}()
	}
	wg.Wait()

	repo.WithAuth("final")
	_, err := repo.DownloadFile("config.json")
	require.NoError(t, err)
	assert.Equal(t, "Bearer final", fh.lastAuth.Load())
}

func TestDatasetRepo(t *testing.T) {
	contents := map[string]string{
		"conll2003/train/0000.parquet":      "train",
		"conll2003/validation/0000.parquet": "validation",
		"conll2003/test/0000.parquet":       "test",
	}
	fh := newFakeHub(t,
		"/api/datasets/eriktks/conll2003/revision/refs%2Fconvert%2Fparquet",
		"/datasets/eriktks/conll2003/resolve/refs%2Fconvert%2Fparquet/",
		contents)
	cacheDir := t.TempDir()
	repo := New("eriktks/conll2003").
		WithType(RepoTypeDataset).
		WithRevision("refs/convert/parquet").
		WithEndpoint(fh.server.URL).
		WithCacheDir(cacheDir).
		WithAuth("")
	assert.Equal(t, "dataset eriktks/conll2003@refs/convert/parquet", repo.String())

	names := []string{"conll2003/train/0000.parquet", "conll2003/validation/0000.parquet", "conll2003/test/0000.parquet"}
	localPaths, err := repo.DownloadFiles(context.Background(), names...)
	require.NoError(t, err)
	require.Len(t, localPaths, 3)
	for ii, localPath := range localPaths {
		assert.Equal(t,
			filepath.Join(cacheDir, "datasets--eriktks--conll2003", "refs--convert--parquet", filepath.FromSlash(names[ii])),
			localPath)
		content, err := os.ReadFile(localPath)
		require.NoError(t, err)
		assert.Equal(t, contents[names[ii]], string(content))
	}
	assert.Equal(t, "", fh.lastAuth.Load())
}

func TestDownloadCancelled(t *testing.T) {
	fh := newFakeHub(t, "/api/models/m/revision/main", "/m/resolve/main/", map[string]string{"a": "a"})
	repo := New("m").WithEndpoint(fh.server.URL).WithCacheDir(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.DownloadFileContext(ctx, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("HF_HUB_CACHE", "")
	t.Setenv("HF_HOME", "/tmp/hf-home")
	assert.Equal(t, filepath.Join("/tmp/hf-home", "hub"), DefaultCacheDir())
	t.Setenv("HF_HUB_CACHE", "/tmp/hf-cache")
	assert.Equal(t, "/tmp/hf-cache", DefaultCacheDir())
}
