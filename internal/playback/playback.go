// Package playback resolves which URL a finished project is played from and
// bounds how often a failed load may be retried.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clipwave/clipwave/internal/store"
)

// MaxRetries is how many times a failed load may be retried per project
const MaxRetries = 3

var (
	// ErrResourceLoad is returned when the resolved URL cannot be played
	ErrResourceLoad = errors.New("video failed to load")
	// ErrRetriesExhausted is returned once MaxRetries retries were spent
	ErrRetriesExhausted = errors.New("video load retries exhausted")
)

// Source names where a resolved URL came from
type Source string

// Source constants
const (
	SourceCurrentURL     Source = "current_url"
	SourceCurrentFile    Source = "current_file"
	SourceProcessedVideo Source = "processed_video"
	SourceOriginalVideo  Source = "original_video"
)

// Liveness reports whether a URL still resolves to bytes
type Liveness interface {
	Alive(url string) bool
}

// Resolution is the outcome of Resolve
type Resolution struct {
	ProjectID    string `json:"project_id"`
	URL          string `json:"url"`
	Source       Source `json:"source"`
	DownloadName string `json:"download_name"`
	Retries      int    `json:"retries"`
	RetriesLeft  int    `json:"retries_left"`
}

// Resolver finds a playable URL for the current project of a session
type Resolver struct {
	urls Liveness

	mu      sync.Mutex
	retries map[string]int
}

// NewResolver creates a resolver checking URLs against urls
func NewResolver(urls Liveness) *Resolver {
	return &Resolver{urls: urls, retries: make(map[string]int)}
}

// DownloadName is the file name offered for a processed project
func DownloadName(projectName string) string {
	return projectName + "-processed.mp4"
}

// Resolve picks the first available URL from the current URL, a URL allocated
// for the current file, the processed video and the original video. URLs
// taken from the project are written back as the current URL.
func (r *Resolver) Resolve(ctx context.Context, st *store.Store) (*Resolution, error) {
	p := st.CurrentProject()
	if p == nil {
		return nil, &store.MissingStateError{What: "current project"}
	}

	res := &Resolution{ProjectID: p.ID, DownloadName: DownloadName(p.Name)}
	r.fillRetries(res)

	switch {
	case st.CurrentVideoURL() != "":
		res.URL, res.Source = st.CurrentVideoURL(), SourceCurrentURL
	case st.CurrentVideoFile() != nil:
		url, err := st.EnsureCurrentVideoURL(ctx)
		if err == nil && url != "" {
			res.URL, res.Source = url, SourceCurrentFile
		}
	}

	if res.URL == "" && p.ProcessedVideo != nil && p.ProcessedVideo.URL != "" {
		res.URL, res.Source = p.ProcessedVideo.URL, SourceProcessedVideo
		st.SetCurrentVideoURL(res.URL)
	}
	if res.URL == "" && p.OriginalVideo.URL != "" {
		res.URL, res.Source = p.OriginalVideo.URL, SourceOriginalVideo
		st.SetCurrentVideoURL(res.URL)
	}

	if res.URL == "" {
		return res, fmt.Errorf("%w: project %s has no video url", ErrResourceLoad, p.ID)
	}
	if !r.urls.Alive(res.URL) {
		return res, fmt.Errorf("%w: %s is no longer available", ErrResourceLoad, res.URL)
	}
	return res, nil
}

// Retry spends one retry for the current project: the current file gets a
// fresh URL when there is one, otherwise the URL is resolved again. After
// MaxRetries it returns ErrRetriesExhausted.
func (r *Resolver) Retry(ctx context.Context, st *store.Store) (*Resolution, error) {
	p := st.CurrentProject()
	if p == nil {
		return nil, &store.MissingStateError{What: "current project"}
	}

	r.mu.Lock()
	if r.retries[p.ID] >= MaxRetries {
		r.mu.Unlock()
		return nil, ErrRetriesExhausted
	}
	r.retries[p.ID]++
	r.mu.Unlock()

	if file := st.CurrentVideoFile(); file != nil {
		if err := st.SetCurrentVideoFile(ctx, file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResourceLoad, err)
		}
	} else if url := st.CurrentVideoURL(); url != "" && !r.urls.Alive(url) {
		// A dead pointer would shadow the project's own URLs
		st.SetCurrentVideoURL("")
	}

	return r.Resolve(ctx, st)
}

// Loaded records a successful load and resets the retry budget
func (r *Resolver) Loaded(projectID string) {
	r.mu.Lock()
	delete(r.retries, projectID)
	r.mu.Unlock()
}

// Retries returns how many retries the project has spent
func (r *Resolver) Retries(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries[projectID]
}

func (r *Resolver) fillRetries(res *Resolution) {
	r.mu.Lock()
	res.Retries = r.retries[res.ProjectID]
	r.mu.Unlock()
	res.RetriesLeft = MaxRetries - res.Retries
}
