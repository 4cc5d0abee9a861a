// Package blob allocates and releases object URLs: opaque locators bound to
// the bytes of an uploaded file until they are revoked.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
)

// Scheme prefixes every URL the registry allocates
const Scheme = "blob:clipwave/"

// ErrNotLive is returned when a URL was never allocated or has been revoked
var ErrNotLive = errors.New("object url is not live")

// Object describes the bytes behind a live URL
type Object struct {
	URL  string
	Key  string
	Name string
	Size int64
	Type string
}

// Registry tracks live object URLs and their backing objects
type Registry struct {
	backend Backend
	logger  *logging.Logger

	mu   sync.Mutex
	live map[string]Object
}

// NewRegistry creates a registry over backend
func NewRegistry(backend Backend, logger *logging.Logger) *Registry {
	return &Registry{
		backend: backend,
		logger:  logger,
		live:    make(map[string]Object),
	}
}

// IsObjectURL reports whether url has the registry's scheme
func IsObjectURL(url string) bool {
	return strings.HasPrefix(url, Scheme) && len(url) > len(Scheme)
}

// IDFromURL returns the object id of url, or "" when url is not an object URL
func IDFromURL(url string) string {
	if !IsObjectURL(url) {
		return ""
	}
	return strings.TrimPrefix(url, Scheme)
}

func objectKey(id string) string {
	return "objects/" + id
}

// Create stores the file bytes and returns a fresh, live URL for them
func (r *Registry) Create(ctx context.Context, file *models.RawFile) (string, error) {
	if file == nil {
		return "", fmt.Errorf("no file to allocate")
	}

	body, err := file.Open()
	if err != nil {
		metrics.RecordObjectURL("create", err)
		return "", fmt.Errorf("failed to open file %q: %w", file.Name, err)
	}
	defer body.Close()

	id := videoutil.GenerateID()
	obj := Object{
		URL:  Scheme + id,
		Key:  objectKey(id),
		Name: file.Name,
		Size: file.Size,
		Type: file.Type,
	}

	if err := r.backend.Put(ctx, obj.Key, body, file.Size, file.Type); err != nil {
		metrics.RecordObjectURL("create", err)
		r.logger.LogObjectURL("create", obj.URL, obj.Size, err)
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	r.mu.Lock()
	r.live[obj.URL] = obj
	r.mu.Unlock()

	metrics.RecordObjectURL("create", nil)
	r.logger.LogObjectURL("create", obj.URL, obj.Size, nil)
	return obj.URL, nil
}

// Revoke releases url. Unknown or already revoked URLs are ignored.
func (r *Registry) Revoke(ctx context.Context, url string) {
	r.mu.Lock()
	obj, ok := r.live[url]
	if ok {
		delete(r.live, url)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	// The URL is dead either way; a failed delete only leaks backend bytes.
	err := r.backend.Delete(ctx, obj.Key)
	metrics.RecordObjectURL("revoke", nil)
	r.logger.LogObjectURL("revoke", url, obj.Size, err)
}

// Alive reports whether url is currently allocated
func (r *Registry) Alive(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[url]
	return ok
}

// Adopt re-registers a URL read back from a persisted snapshot. It succeeds
// only when the backend still holds the object; adopting a live URL is a no-op.
func (r *Registry) Adopt(ctx context.Context, file models.VideoFile) bool {
	url := file.URL
	if !IsObjectURL(url) {
		return false
	}
	if r.Alive(url) {
		return true
	}

	key := objectKey(IDFromURL(url))
	exists, err := r.backend.Exists(ctx, key)
	if err != nil || !exists {
		return false
	}

	r.mu.Lock()
	if _, ok := r.live[url]; ok {
		r.mu.Unlock()
		return true
	}
	r.live[url] = Object{URL: url, Key: key, Name: file.Name, Size: file.Size, Type: file.Type}
	r.mu.Unlock()

	metrics.RecordObjectURL("adopt", nil)
	return true
}

// Open streams the bytes behind a live URL
func (r *Registry) Open(ctx context.Context, url string) (io.ReadCloser, Object, error) {
	r.mu.Lock()
	obj, ok := r.live[url]
	r.mu.Unlock()
	if !ok {
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotLive, url)
	}

	rc, err := r.backend.Open(ctx, obj.Key)
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to open object: %w", err)
	}
	return rc, obj, nil
}

// LiveCount returns the number of live URLs
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
