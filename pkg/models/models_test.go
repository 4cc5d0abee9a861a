package models

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProject() *VideoProject {
	return &VideoProject{
		ID:   "p1",
		Name: "clip",
		OriginalVideo: VideoFile{
			ID:     "v1",
			Name:   "clip.mp4",
			Size:   10,
			Type:   MimeTypeMP4,
			URL:    "blob:clipwave/a",
			Status: FileStatusUploading,
		},
		Steps: []ProcessingStep{
			{ID: "upload", Status: StepStatusPending},
			{ID: "rendering", Status: StepStatusPending},
		},
		Settings: DefaultVideoSettings(),
		Status:   ProjectStatusPending,
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(p *VideoProject)
		expected ProjectStatus
	}{
		{"pending", func(p *VideoProject) {}, ProjectStatusPending},
		{"processing", func(p *VideoProject) { p.Steps[0].Status = StepStatusProcessing }, ProjectStatusProcessing},
		{"failed", func(p *VideoProject) {
			p.Steps[0].Status = StepStatusCompleted
			p.Steps[1].Status = StepStatusError
		}, ProjectStatusFailed},
		{"completed", func(p *VideoProject) {
			p.ProcessedVideo = &VideoFile{Status: FileStatusCompleted, Progress: 100, URL: "blob:clipwave/b"}
		}, ProjectStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProject()
			tt.mutate(p)
			assert.Equal(t, tt.expected, p.DeriveStatus())
		})
	}
}

func TestActiveStep(t *testing.T) {
	p := testProject()
	assert.Equal(t, -1, p.ActiveStep())

	p.Steps[1].Status = StepStatusProcessing
	assert.Equal(t, 1, p.ActiveStep())
}

func TestCloneIsDeep(t *testing.T) {
	p := testProject()
	p.ProcessedVideo = &VideoFile{ID: "out", Status: FileStatusCompleted, Progress: 100}

	c := p.Clone()
	c.Steps[0].Progress = 50
	c.ProcessedVideo.ID = "changed"
	*c.Settings.VoiceCloning = true

	assert.Equal(t, 0, p.Steps[0].Progress)
	assert.Equal(t, "out", p.ProcessedVideo.ID)
	assert.False(t, *p.Settings.VoiceCloning)

	var nilProject *VideoProject
	assert.Nil(t, nilProject.Clone())
}

func TestProjectURLs(t *testing.T) {
	p := testProject()
	assert.True(t, p.References("blob:clipwave/a"))
	assert.False(t, p.References("blob:clipwave/b"))

	p.ProcessedVideo = &VideoFile{URL: "blob:clipwave/b", Status: FileStatusCompleted, Progress: 100}
	assert.ElementsMatch(t, []string{"blob:clipwave/a", "blob:clipwave/b"}, p.URLs())
}

func TestProjectPatchValidate(t *testing.T) {
	empty := ""
	badRes := Resolution("8k")

	tests := []struct {
		name  string
		patch ProjectPatch
		valid bool
	}{
		{"empty", ProjectPatch{}, true},
		{"blank name", ProjectPatch{Name: &empty}, false},
		{"wrong step count", ProjectPatch{Steps: []ProcessingStep{{ID: "upload", Status: StepStatusPending}}}, false},
		{"wrong step id", ProjectPatch{Steps: []ProcessingStep{
			{ID: "upload", Status: StepStatusPending},
			{ID: "editing", Status: StepStatusPending},
		}}, false},
		{"progress out of range", ProjectPatch{Steps: []ProcessingStep{
			{ID: "upload", Status: StepStatusProcessing, Progress: 101},
			{ID: "rendering", Status: StepStatusPending},
		}}, false},
		{"two active steps", ProjectPatch{Steps: []ProcessingStep{
			{ID: "upload", Status: StepStatusProcessing},
			{ID: "rendering", Status: StepStatusProcessing},
		}}, false},
		{"one active step", ProjectPatch{Steps: []ProcessingStep{
			{ID: "upload", Status: StepStatusCompleted, Progress: 100},
			{ID: "rendering", Status: StepStatusProcessing, Progress: 40},
		}}, true},
		{"processed without url", ProjectPatch{ProcessedVideo: &VideoFile{Status: FileStatusCompleted, Progress: 100}}, false},
		{"processed not completed", ProjectPatch{ProcessedVideo: &VideoFile{Status: FileStatusProcessing, Progress: 50, URL: "x"}}, false},
		{"bad settings", ProjectPatch{Settings: &VideoSettings{Resolution: badRes, AspectRatio: AspectRatioSquare}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.ValidateFor(testProject())
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPatch)
			}
		})
	}
}

func TestProjectPatchApply(t *testing.T) {
	p := testProject()
	name := "renamed"
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	ProjectPatch{
		Name:           &name,
		ProcessedVideo: &VideoFile{ID: "out", Status: FileStatusCompleted, Progress: 100, URL: "blob:clipwave/b"},
	}.ApplyTo(p, now)

	assert.Equal(t, "renamed", p.Name)
	assert.Equal(t, now, p.UpdatedAt)
	assert.Equal(t, ProjectStatusCompleted, p.Status)
	assert.True(t, ProjectPatch{}.IsEmpty())
}

func TestVideoFileValidate(t *testing.T) {
	assert.NoError(t, VideoFile{Status: FileStatusUploading}.Validate())
	assert.Error(t, VideoFile{Status: "done"}.Validate())
	assert.Error(t, VideoFile{Status: FileStatusCompleted, Progress: 90}.Validate())
	assert.Error(t, VideoFile{Status: FileStatusProcessing, Progress: -1}.Validate())
	assert.Error(t, VideoFile{Status: FileStatusUploading, Size: -1}.Validate())
}

func TestRawFile(t *testing.T) {
	f := NewRawFile("clip.mp4", MimeTypeMP4, 5, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("bytes")), nil
	})

	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))

	assert.Equal(t, FileInfo{Name: "clip.mp4", Size: 5, Type: MimeTypeMP4}, f.Info())
}

func TestSettingsPatch(t *testing.T) {
	res := Resolution720p
	broll := true
	patched := DefaultVideoSettings().Apply(SettingsPatch{Resolution: &res, AutoBroll: &broll})

	assert.Equal(t, Resolution720p, patched.Resolution)
	assert.True(t, patched.AutoBroll)
	assert.Equal(t, AspectRatioVertical, patched.AspectRatio)
	assert.Equal(t, Resolution1080p, DefaultVideoSettings().Resolution)

	bad := AspectRatio("4:3")
	assert.Error(t, SettingsPatch{AspectRatio: &bad}.Validate())
	assert.Error(t, SettingsPatch{Dubbing: &Dubbing{Enabled: true, Language: "fr"}}.Validate())
	assert.NoError(t, SettingsPatch{Dubbing: &Dubbing{Enabled: true, Language: DubbingSpanish}}.Validate())
}

func TestPlanCatalog(t *testing.T) {
	p, ok := FindPlan(PlanPro)
	require.True(t, ok)
	assert.True(t, p.Highlighted)

	_, ok = FindPlan("enterprise")
	assert.False(t, ok)

	u := User{Name: "Alice", Plan: PlanFree}
	name := "Alicia"
	plan := PlanCreator
	UserPatch{Name: &name, Plan: &plan}.Apply(&u)
	assert.Equal(t, "Alicia", u.Name)
	assert.Equal(t, PlanCreator, u.Plan)
}
