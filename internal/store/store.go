// Package store holds the per-session project state: the project list, the
// current project, the active file and its object URL, the processing flag
// and the default video settings.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/persist"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
)

// URLRegistry allocates and releases object URLs
type URLRegistry interface {
	Create(ctx context.Context, file *models.RawFile) (string, error)
	Revoke(ctx context.Context, url string)
	Adopt(ctx context.Context, file models.VideoFile) bool
}

// State is a copy of everything the store holds
type State struct {
	CurrentProject   *models.VideoProject   `json:"current_project"`
	Projects         []*models.VideoProject `json:"projects"`
	CurrentVideoFile *models.FileInfo       `json:"current_video_file"`
	CurrentVideoURL  string                 `json:"current_video_url,omitempty"`
	IsProcessing     bool                   `json:"is_processing"`
	VideoSettings    models.VideoSettings   `json:"video_settings"`
}

// snapshot is the persisted slice of the store
type snapshot struct {
	Projects         []*models.VideoProject `json:"projects"`
	CurrentProjectID string                 `json:"current_project_id,omitempty"`
	VideoSettings    models.VideoSettings   `json:"video_settings"`
}

// Store is one session's state. All operations are atomic.
type Store struct {
	userID  string
	urls    URLRegistry
	adapter persist.Adapter
	logger  *logging.Logger
	now     func() time.Time

	saveMu sync.Mutex

	mu         sync.Mutex
	current    *models.VideoProject
	projects   []*models.VideoProject
	file       *models.RawFile
	url        string
	ownedURL   string
	pinned     map[string]int
	processing bool
	settings   models.VideoSettings
	hydrated   bool
}

// New creates an empty store with default settings. adapter may be nil, in
// which case Hydrate and Save do nothing.
func New(userID string, urls URLRegistry, adapter persist.Adapter, logger *logging.Logger) *Store {
	return &Store{
		userID:   userID,
		urls:     urls,
		adapter:  adapter,
		logger:   logger.WithUserID(userID),
		now:      time.Now,
		settings: models.DefaultVideoSettings(),
		pinned:   make(map[string]int),
	}
}

// UserID returns the owner of the session
func (s *Store) UserID() string {
	return s.userID
}

// SetCurrentProject replaces the current project pointer. Nothing else changes.
func (s *Store) SetCurrentProject(p *models.VideoProject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p.Clone()
}

// AddProject appends p to the list and makes it the current project
func (s *Store) AddProject(p *models.VideoProject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = append(s.projects, p.Clone())
	s.current = p.Clone()

	metrics.ProjectsCreatedTotal.Inc()
	s.logger.LogProjectEvent(p.ID, string(models.EventProjectCreated), string(p.Status), nil)
}

// UpdateProject merges patch into the project with the given id and into the
// current project when it is the same entity. An unknown id is a no-op. An
// invalid patch leaves the store untouched.
func (s *Store) UpdateProject(id string, patch models.ProjectPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []*models.VideoProject
	for _, p := range s.projects {
		if p.ID == id {
			targets = append(targets, p)
		}
	}
	if s.current != nil && s.current.ID == id {
		targets = append(targets, s.current)
	}
	if len(targets) == 0 {
		return nil
	}

	for _, p := range targets {
		if err := patch.ValidateFor(p); err != nil {
			return videoutil.InvalidField("project", err)
		}
	}

	now := s.now()
	for _, p := range targets {
		patch.ApplyTo(p, now)
	}
	return nil
}

// DeleteProject removes the project, clears it as current, and releases its
// object URLs unless another project or the current slot still references them.
func (s *Store) DeleteProject(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released []string
	kept := s.projects[:0]
	for _, p := range s.projects {
		if p.ID == id {
			released = append(released, p.URLs()...)
			continue
		}
		kept = append(kept, p)
	}
	// Zero the tail so removed projects are not retained by the backing array
	for i := len(kept); i < len(s.projects); i++ {
		s.projects[i] = nil
	}
	found := len(kept) < len(s.projects)
	s.projects = kept

	if s.current != nil && s.current.ID == id {
		released = append(released, s.current.URLs()...)
		s.current = nil
		found = true
	}
	if !found {
		return false
	}

	seen := make(map[string]bool, len(released))
	for _, url := range released {
		if seen[url] {
			continue
		}
		seen[url] = true
		if url == s.ownedURL || url == s.url || s.referencedLocked(url) {
			continue
		}
		s.urls.Revoke(ctx, url)
	}

	metrics.ProjectsDeletedTotal.Inc()
	s.logger.LogProjectEvent(id, string(models.EventProjectDeleted), "", map[string]interface{}{
		"released_urls": len(seen),
	})
	return true
}

// SetCurrentVideoFile replaces the active file. The URL the store allocated
// for the previous file is revoked first unless a stored project references
// it. A nil file clears both the file and the URL.
func (s *Store) SetCurrentVideoFile(ctx context.Context, file *models.RawFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseOwnedLocked(ctx)
	s.file = nil
	s.url = ""

	if file == nil {
		return nil
	}

	url, err := s.urls.Create(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to allocate object url: %w", err)
	}

	s.file = file
	s.url = url
	s.ownedURL = url
	return nil
}

// SetCurrentVideoURL points the current URL somewhere else. Nothing is revoked.
func (s *Store) SetCurrentVideoURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// SetCurrentVideoURLFor points the current URL at url only while projectID is
// the current project. It reports whether the URL was set.
func (s *Store) SetCurrentVideoURLFor(projectID, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID != projectID {
		return false
	}
	s.url = url
	return true
}

// Pin keeps url alive until the matching Unpin, even when no project
// references it and the active file is replaced.
func (s *Store) Pin(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[url]++
}

// Unpin drops one pin on url. The last pin revokes the URL unless the store
// still owns it, it is the current URL or a project references it.
func (s *Store) Unpin(ctx context.Context, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.pinned[url]
	if !ok {
		return
	}
	if n > 1 {
		s.pinned[url] = n - 1
		return
	}
	delete(s.pinned, url)
	if url == s.ownedURL || url == s.url || s.referencedLocked(url) {
		return
	}
	s.urls.Revoke(ctx, url)
}

// EnsureCurrentVideoURL allocates a URL for the current file when the current
// URL is empty, and returns the current URL.
func (s *Store) EnsureCurrentVideoURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.url != "" || s.file == nil {
		return s.url, nil
	}

	s.releaseOwnedLocked(ctx)

	url, err := s.urls.Create(ctx, s.file)
	if err != nil {
		return "", fmt.Errorf("failed to allocate object url: %w", err)
	}
	s.url = url
	s.ownedURL = url
	return url, nil
}

// SetIsProcessing sets the processing flag
func (s *Store) SetIsProcessing(processing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = processing
}

// UpdateVideoSettings merges patch into the defaults used for future projects.
// Existing projects keep their settings.
func (s *Store) UpdateVideoSettings(patch models.SettingsPatch) error {
	if err := patch.Validate(); err != nil {
		return videoutil.InvalidField("settings", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.settings.Apply(patch)
	return nil
}

// CurrentProject returns a copy of the current project, or nil
func (s *Store) CurrentProject() *models.VideoProject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Projects returns copies of all projects in insertion order
func (s *Store) Projects() []*models.VideoProject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.projects)
}

// Project returns a copy of the project with the given id
func (s *Store) Project(id string) (*models.VideoProject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return nil, false
}

// CurrentVideoFile returns the active file handle, or nil
func (s *Store) CurrentVideoFile() *models.RawFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

// CurrentVideoURL returns the current URL, empty when absent
func (s *Store) CurrentVideoURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// IsProcessing returns the processing flag
func (s *Store) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// VideoSettings returns a copy of the default settings
func (s *Store) VideoSettings() models.VideoSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// State returns a copy of the whole store
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		CurrentProject:  s.current.Clone(),
		Projects:        cloneAll(s.projects),
		CurrentVideoURL: s.url,
		IsProcessing:    s.processing,
		VideoSettings:   s.settings.Clone(),
	}
	if s.file != nil {
		info := s.file.Info()
		st.CurrentVideoFile = &info
	}
	return st
}

// Hydrated reports whether Hydrate has completed
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Hydrate restores the persisted slice. Object URLs of restored projects are
// re-adopted by the registry when their bytes still exist; runs interrupted
// mid-way are reset to pending.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.adapter == nil {
		s.markHydrated()
		return nil
	}

	data, err := s.adapter.Load(ctx, persist.StorageKey(s.userID))
	if errors.Is(err, persist.ErrNotFound) {
		s.markHydrated()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}

	projects := make([]*models.VideoProject, 0, len(snap.Projects))
	for _, p := range snap.Projects {
		if p == nil {
			continue
		}
		if p.ProcessedVideo == nil && p.ActiveStep() >= 0 {
			resetSteps(p)
		}
		p.Status = p.DeriveStatus()
		for _, f := range []*models.VideoFile{&p.OriginalVideo, p.ProcessedVideo} {
			if f != nil && f.URL != "" && !s.urls.Adopt(ctx, *f) {
				s.logger.WithProjectID(p.ID).Warnf("object url %s could not be restored", f.URL)
			}
		}
		projects = append(projects, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = projects
	s.current = nil
	for _, p := range projects {
		if p.ID == snap.CurrentProjectID {
			s.current = p.Clone()
		}
	}
	if snap.VideoSettings.Validate() == nil {
		s.settings = snap.VideoSettings.Clone()
	}
	s.hydrated = true
	return nil
}

// Save writes the persisted slice through the adapter
func (s *Store) Save(ctx context.Context) error {
	if s.adapter == nil {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		Projects:      s.projects,
		VideoSettings: s.settings,
	}
	if s.current != nil {
		snap.CurrentProjectID = s.current.ID
	}
	data, err := json.Marshal(snap)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.adapter.Save(ctx, persist.StorageKey(s.userID), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) markHydrated() {
	s.mu.Lock()
	s.hydrated = true
	s.mu.Unlock()
}

// releaseOwnedLocked revokes the URL the store allocated for the current file.
// A URL a project references or a run has pinned is kept.
func (s *Store) releaseOwnedLocked(ctx context.Context) {
	owned := s.ownedURL
	s.ownedURL = ""
	if owned == "" || s.referencedLocked(owned) {
		return
	}
	s.urls.Revoke(ctx, owned)
}

func (s *Store) referencedLocked(url string) bool {
	if s.pinned[url] > 0 {
		return true
	}
	if s.current != nil && s.current.References(url) {
		return true
	}
	for _, p := range s.projects {
		if p.References(url) {
			return true
		}
	}
	return false
}

func resetSteps(p *models.VideoProject) {
	for i := range p.Steps {
		p.Steps[i].Status = models.StepStatusPending
		p.Steps[i].Progress = 0
	}
}

func cloneAll(projects []*models.VideoProject) []*models.VideoProject {
	out := make([]*models.VideoProject, len(projects))
	for i, p := range projects {
		out[i] = p.Clone()
	}
	return out
}
