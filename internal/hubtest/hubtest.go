// Package hubtest serves fake HuggingFace Hub repositories for tests.
package hubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"
)

// Repo is the content of a fake repository.
type Repo struct {
	// Type is "model" or "dataset". Empty means "model".
	Type string
	ID   string

	// Revision defaults to "main".
	Revision string

	Files map[string][]byte
}

// Server is a fake Hub serving the info API and file downloads of its repositories.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	routes    map[string]func(w http.ResponseWriter)
	downloads map[string]int
}

// New starts a fake Hub with the given repositories. It is closed when the test ends.
func New(t testing.TB, repos ...Repo) *Server {
	s := &Server{
		routes:    make(map[string]func(w http.ResponseWriter)),
		downloads: make(map[string]int),
	}
	for _, repo := range repos {
		s.add(repo)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		route, found := s.routes[r.URL.EscapedPath()]
		s.mu.Unlock()
		if !found {
			http.NotFound(w, r)
			return
		}
		route(w)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) add(repo Repo) {
	repoType := repo.Type
	if repoType == "" {
		repoType = "model"
	}
	revision := repo.Revision
	if revision == "" {
		revision = "main"
	}
	escapedRevision := url.PathEscape(revision)

	names := make([]string, 0, len(repo.Files))
	for name := range repo.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	type sibling struct {
		Name string `json:"rfilename"`
	}
	info := struct {
		ID       string    `json:"id"`
		Siblings []sibling `json:"siblings"`
	}{ID: repo.ID}
	for _, name := range names {
		info.Siblings = append(info.Siblings, sibling{name})
	}
	infoJSON, _ := json.Marshal(info)
	s.routes[fmt.Sprintf("/api/%ss/%s/revision/%s", repoType, repo.ID, escapedRevision)] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(infoJSON)
	}

	prefix := ""
	if repoType != "model" {
		prefix = repoType + "s/"
	}
	for _, name := range names {
		urlPath := fmt.Sprintf("/%s%s/resolve/%s/%s", prefix, repo.ID, escapedRevision, name)
		content := repo.Files[name]
		s.routes[urlPath] = func(w http.ResponseWriter) {
			s.mu.Lock()
			s.downloads[name]++
			s.mu.Unlock()
			_, _ = w.Write(content)
		}
	}
}

// Downloads returns how many times a file with the given name was downloaded, from any repository.
func (s *Server) Downloads(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[name]
}
