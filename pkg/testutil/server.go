package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sync"
	"testing"
)

// PackageServer serves built package archives over HTTP.
type PackageServer struct {
	*httptest.Server

	mu       sync.Mutex
	archives map[string]string
	hits     map[string]int
	failures map[string]failure
	holds    map[string]chan struct{}
	started  map[string]chan struct{}
	closed   chan struct{}
}

type failure struct {
	status int
	times  int
}

// ServePackages starts a server for pkgs and points each record's URL at
// it. The server is closed when the test ends.
func ServePackages(t *testing.T, pkgs ...*BuiltPackage) *PackageServer {
	t.Helper()

	s := &PackageServer{
		archives: make(map[string]string),
		hits:     make(map[string]int),
		failures: make(map[string]failure),
		holds:    make(map[string]chan struct{}),
		started:  make(map[string]chan struct{}),
		closed:   make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	for _, p := range pkgs {
		s.archives[p.Record.FileName] = p.Path
		p.Record.URL = s.URL + "/" + p.Record.FileName
	}
	t.Cleanup(func() {
		close(s.closed)
		s.Close()
	})
	return s
}

func (s *PackageServer) serve(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)

	s.mu.Lock()
	s.hits[name]++
	archive, known := s.archives[name]
	fail, failing := s.failures[name]
	if failing {
		fail.times--
		if fail.times <= 0 {
			delete(s.failures, name)
		} else {
			s.failures[name] = fail
		}
	}
	hold := s.holds[name]
	started := s.started[name]
	s.mu.Unlock()

	if started != nil {
		select {
		case <-started:
		default:
			close(started)
		}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		}
	}
	if failing {
		http.Error(w, http.StatusText(fail.status), fail.status)
		return
	}
	if !known {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// Hits returns how many requests were made for fileName.
func (s *PackageServer) Hits(fileName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[fileName]
}

// FailWith makes the next times requests for fileName answer status.
func (s *PackageServer) FailWith(fileName string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[fileName] = failure{status: status, times: times}
}

// Hold blocks requests for fileName until release is called. started is
// closed once the first such request arrives.
func (s *PackageServer) Hold(fileName string) (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold := make(chan struct{})
	begun := make(chan struct{})
	s.holds[fileName] = hold
	s.started[fileName] = begun
	var once sync.Once
	return begun, func() { once.Do(func() { close(hold) }) }
}
