// SPDX-License-Identifier: MIT
package record

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ArtifactsPath is where MemoryStore serves artifacts.
const ArtifactsPath = "/artifacts/"

// DefaultTTL is how long a MemoryStore keeps an artifact.
const DefaultTTL = 5 * time.Minute

var ErrNotFound = errors.New("record: artifact not found")

// Store persists an artifact and returns a URL it can be retrieved from.
type Store interface {
	Put(name, mimeType string, data []byte) (string, error)
}

// Revoker is a Store whose artifacts can be released before they expire.
type Revoker interface {
	Revoke(url string) error
}

var _ Revoker = (*MemoryStore)(nil)

// DirStore writes artifacts into a directory and returns file:// URLs. An
// existing file is never overwritten; a numeric suffix is added instead.
type DirStore struct {
	Dir string
}

func (d DirStore) Put(name, mimeType string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		p := filepath.Join(d.Dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", p, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write %s: %w", p, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
}

type memEntry struct {
	name     string
	mimeType string
	data     []byte
	timer    *time.Timer
}

// MemoryStore keeps artifacts in memory, serves them over HTTP under
// ArtifactsPath and revokes each one after its TTL.
type MemoryStore struct {
	baseURL string
	ttl     time.Duration
	seq     atomic.Uint64

	mu      sync.Mutex
	entries map[string]*memEntry
}

// NewMemoryStore returns a store whose URLs start with baseURL (for example
// "http://localhost:8080"). A ttl of zero means DefaultTTL.
func NewMemoryStore(baseURL string, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ttl:     ttl,
		entries: make(map[string]*memEntry),
	}
}

func (m *MemoryStore) Put(name, mimeType string, data []byte) (string, error) {
	id := strconv.FormatUint(m.seq.Add(1), 36)
	e := &memEntry{name: path.Base(name), mimeType: mimeType, data: data}

	m.mu.Lock()
	m.entries[id] = e
	e.timer = time.AfterFunc(m.ttl, func() { m.revoke(id) })
	m.mu.Unlock()

	return m.baseURL + ArtifactsPath + id + "/" + url.PathEscape(e.name), nil
}

// Revoke drops the artifact behind u.
func (m *MemoryStore) Revoke(u string) error {
	id, _, ok := m.parse(u)
	if !ok || !m.revoke(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, u)
	}
	return nil
}

func (m *MemoryStore) revoke(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(m.entries, id)
	return true
}

// parse extracts the id from a full URL or a request path.
func (m *MemoryStore) parse(u string) (id, name string, ok bool) {
	u = strings.TrimPrefix(u, m.baseURL)
	rest, found := strings.CutPrefix(u, ArtifactsPath)
	if !found {
		return "", "", false
	}
	id, name, _ = strings.Cut(rest, "/")
	return id, name, id != ""
}

// ServeHTTP serves GET ArtifactsPath{id}/{name}.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, _, ok := m.parse(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.mu.Lock()
	e, found := m.entries[id]
	m.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", e.mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(e.data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.name))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(e.data)
	}
}
