// Package downloader implements HTTP downloads with a limit on parallel transfers,
// an optional authentication token and progress reporting.
package downloader

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// ProgressCallback is called as a download progresses, with the number of bytes downloaded so far
// and the total size, or -1 if the server didn't report it.
type ProgressCallback func(downloaded, total int64)

// Manager handles downloads, limiting the number of parallel transfers.
// It is safe for concurrent use once configured.
type Manager struct {
	client      *http.Client
	authToken   string
	userAgent   string
	semaphore   chan struct{}
	maxParallel int
}

// DefaultMaxParallel is the default number of parallel downloads of a Manager.
const DefaultMaxParallel = 4

// New creates a Manager with DefaultMaxParallel parallel downloads and the default HTTP client.
func New() *Manager {
	return (&Manager{
		client:    http.DefaultClient,
		userAgent: "conll-ner/go",
	}).MaxParallel(DefaultMaxParallel)
}

// MaxParallel sets the maximum number of parallel downloads. Values <= 0 are replaced by
// DefaultMaxParallel.
//
// It returns itself, to allow cascading configuration calls.
func (m *Manager) MaxParallel(n int) *Manager {
	if n <= 0 {
		n = DefaultMaxParallel
	}
	m.maxParallel = n
	m.semaphore = make(chan struct{}, n)
	return m
}

// WithAuthToken sets the bearer token sent with every request. Empty means no authentication.
//
// It returns itself, to allow cascading configuration calls.
func (m *Manager) WithAuthToken(authToken string) *Manager {
	m.authToken = authToken
	return m
}

// WithHTTPClient sets the client used for requests.
//
// It returns itself, to allow cascading configuration calls.
func (m *Manager) WithHTTPClient(client *http.Client) *Manager {
	m.client = client
	return m
}

// NewRequest creates a GET request with the authentication and user-agent headers set.
func (m *Manager) NewRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %q", url)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}
	req.Header.Set("User-Agent", m.userAgent)
	return req, nil
}

// Do executes the request with the Manager's client, and returns an error if the response
// status is not 200 OK. On success the caller must close the response body.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %q failed", req.URL)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.Errorf("request to %q failed with status %s", req.URL, resp.Status)
	}
	return resp, nil
}

// Download url to filePath, creating or truncating it. It blocks while there are already
// MaxParallel downloads in progress.
//
// progressCallback may be nil.
func (m *Manager) Download(ctx context.Context, url, filePath string, progressCallback ProgressCallback) error {
	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.semaphore }()

	req, err := m.NewRequest(ctx, url)
	if err != nil {
		return err
	}
	resp, err := m.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	var src io.Reader = resp.Body
	if progressCallback != nil {
		src = &progressReader{r: resp.Body, total: resp.ContentLength, callback: progressCallback}
	}
	_, err = io.Copy(f, src)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to download %q to %q", url, filePath)
	}
	return nil
}

type progressReader struct {
	r          io.Reader
	downloaded int64
	total      int64
	callback   ProgressCallback
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.downloaded += int64(n)
		p.callback(p.downloaded, p.total)
	}
	return n, err
}
