package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StepStatus is the status of one pipeline stage
type StepStatus string

// StepStatus constants
const (
	StepStatusPending    StepStatus = "pending"
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusError      StepStatus = "error"
)

// Valid reports whether s is a known step status
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusProcessing, StepStatusCompleted, StepStatusError:
		return true
	}
	return false
}

// ProjectStatus is the lifecycle state of a project, maintained by the store
type ProjectStatus string

// ProjectStatus constants
const (
	ProjectStatusPending    ProjectStatus = "pending"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// ProcessingStep is one stage of the simulated pipeline
type ProcessingStep struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Progress    int        `json:"progress"`
}

// VideoProject tracks one submitted video through the pipeline
type VideoProject struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	OriginalVideo  VideoFile        `json:"original_video"`
	ProcessedVideo *VideoFile       `json:"processed_video,omitempty"`
	Steps          []ProcessingStep `json:"steps"`
	Settings       VideoSettings    `json:"settings"`
	Status         ProjectStatus    `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Clone returns a deep copy of the project
func (p *VideoProject) Clone() *VideoProject {
	if p == nil {
		return nil
	}
	out := *p
	if p.ProcessedVideo != nil {
		pv := *p.ProcessedVideo
		out.ProcessedVideo = &pv
	}
	out.Steps = append([]ProcessingStep(nil), p.Steps...)
	out.Settings = p.Settings.Clone()
	return &out
}

// URLs returns the non-empty resource locators the project references
func (p *VideoProject) URLs() []string {
	var urls []string
	if p.OriginalVideo.URL != "" {
		urls = append(urls, p.OriginalVideo.URL)
	}
	if p.ProcessedVideo != nil && p.ProcessedVideo.URL != "" {
		urls = append(urls, p.ProcessedVideo.URL)
	}
	return urls
}

// References reports whether the project holds url
func (p *VideoProject) References(url string) bool {
	if url == "" {
		return false
	}
	for _, u := range p.URLs() {
		if u == url {
			return true
		}
	}
	return false
}

// DeriveStatus computes the lifecycle state from steps and processed video.
func (p *VideoProject) DeriveStatus() ProjectStatus {
	if p.ProcessedVideo != nil && p.ProcessedVideo.Status == FileStatusCompleted {
		return ProjectStatusCompleted
	}
	processing := false
	for _, s := range p.Steps {
		switch s.Status {
		case StepStatusError:
			return ProjectStatusFailed
		case StepStatusProcessing:
			processing = true
		}
	}
	if processing {
		return ProjectStatusProcessing
	}
	return ProjectStatusPending
}

// ActiveStep returns the index of the step currently processing, or -1
func (p *VideoProject) ActiveStep() int {
	for i, s := range p.Steps {
		if s.Status == StepStatusProcessing {
			return i
		}
	}
	return -1
}

// ErrInvalidPatch is returned when a patch does not fit the project it targets
var ErrInvalidPatch = errors.New("invalid project patch")

// ProjectPatch is a typed partial update of a VideoProject; nil fields are kept
type ProjectPatch struct {
	Name           *string          `json:"name,omitempty"`
	Steps          []ProcessingStep `json:"steps,omitempty"`
	ProcessedVideo *VideoFile       `json:"processed_video,omitempty"`
	Settings       *VideoSettings   `json:"settings,omitempty"`
}

// IsEmpty reports whether the patch changes nothing besides the update timestamp
func (pp ProjectPatch) IsEmpty() bool {
	return pp.Name == nil && pp.Steps == nil && pp.ProcessedVideo == nil && pp.Settings == nil
}

// ValidateFor checks the patch against the project's field set
func (pp ProjectPatch) ValidateFor(p *VideoProject) error {
	if pp.Name != nil && strings.TrimSpace(*pp.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidPatch)
	}
	if pp.Steps != nil {
		if len(pp.Steps) != len(p.Steps) {
			return fmt.Errorf("%w: expected %d steps, got %d", ErrInvalidPatch, len(p.Steps), len(pp.Steps))
		}
		active := 0
		for i, s := range pp.Steps {
			if s.ID != p.Steps[i].ID {
				return fmt.Errorf("%w: step %d is %q, want %q", ErrInvalidPatch, i, s.ID, p.Steps[i].ID)
			}
			if !s.Status.Valid() {
				return fmt.Errorf("%w: step %q has unknown status %q", ErrInvalidPatch, s.ID, s.Status)
			}
			if s.Progress < 0 || s.Progress > 100 {
				return fmt.Errorf("%w: step %q progress %d out of range", ErrInvalidPatch, s.ID, s.Progress)
			}
			if s.Status == StepStatusProcessing {
				active++
			}
		}
		if active > 1 {
			return fmt.Errorf("%w: %d steps processing at once", ErrInvalidPatch, active)
		}
	}
	if pp.ProcessedVideo != nil {
		if err := pp.ProcessedVideo.Validate(); err != nil {
			return fmt.Errorf("%w: processed video: %v", ErrInvalidPatch, err)
		}
		if pp.ProcessedVideo.Status != FileStatusCompleted {
			return fmt.Errorf("%w: processed video must be completed", ErrInvalidPatch)
		}
		if pp.ProcessedVideo.URL == "" {
			return fmt.Errorf("%w: processed video needs a url", ErrInvalidPatch)
		}
	}
	if pp.Settings != nil {
		if err := pp.Settings.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
	}
	return nil
}

// ApplyTo merges the patch into p, refreshing UpdatedAt and Status
func (pp ProjectPatch) ApplyTo(p *VideoProject, now time.Time) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Steps != nil {
		p.Steps = append([]ProcessingStep(nil), pp.Steps...)
	}
	if pp.ProcessedVideo != nil {
		pv := *pp.ProcessedVideo
		p.ProcessedVideo = &pv
	}
	if pp.Settings != nil {
		p.Settings = pp.Settings.Clone()
	}
	p.UpdatedAt = now
	p.Status = p.DeriveStatus()
}
