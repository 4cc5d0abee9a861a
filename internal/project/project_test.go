package project

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAllocator struct{}

func (failingAllocator) Create(ctx context.Context, file *models.RawFile) (string, error) {
	return "", errors.New("bucket unavailable")
}

func sizedFile(name string, size int64) *models.RawFile {
	return models.NewRawFile(name, models.MimeTypeMP4, size, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	})
}

func TestFactoryCreate(t *testing.T) {
	registry := blob.NewRegistry(blob.NewMemoryBackend(), logging.Nop())
	factory := NewFactory(registry)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	factory.now = func() time.Time { return fixed }

	file := sizedFile("clip.mp4", 52428800)
	p, err := factory.Create(context.Background(), file, models.DefaultVideoSettings())
	require.NoError(t, err)

	assert.Equal(t, "clip", p.Name)
	assert.Equal(t, int64(52428800), p.OriginalVideo.Size)
	assert.Equal(t, models.FileStatusUploading, p.OriginalVideo.Status)
	assert.Equal(t, 0, p.OriginalVideo.Progress)
	assert.Equal(t, "50 MB", videoutil.FormatFileSize(p.OriginalVideo.Size))
	assert.Equal(t, models.ProjectStatusPending, p.Status)
	assert.Equal(t, fixed, p.CreatedAt)
	assert.Equal(t, fixed, p.UpdatedAt)
	assert.Nil(t, p.ProcessedVideo)

	require.Len(t, p.Steps, 5)
	for i, step := range p.Steps {
		assert.Equal(t, Stages[i].ID, step.ID)
		assert.Equal(t, models.StepStatusPending, step.Status)
		assert.Equal(t, 0, step.Progress)
	}

	assert.True(t, registry.Alive(p.OriginalVideo.URL))
}

func TestFactoryCreateFreshIdentity(t *testing.T) {
	registry := blob.NewRegistry(blob.NewMemoryBackend(), logging.Nop())
	factory := NewFactory(registry)
	file := sizedFile("clip.mp4", 10)

	a, err := factory.Create(context.Background(), file, models.DefaultVideoSettings())
	require.NoError(t, err)
	b, err := factory.Create(context.Background(), file, models.DefaultVideoSettings())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.OriginalVideo.URL, b.OriginalVideo.URL)
	assert.Equal(t, 2, registry.LiveCount())
}

func TestFactoryCopiesSettings(t *testing.T) {
	factory := NewFactory(blob.NewRegistry(blob.NewMemoryBackend(), logging.Nop()))

	settings := models.DefaultVideoSettings()
	p, err := factory.Create(context.Background(), sizedFile("clip.mov", 10), settings)
	require.NoError(t, err)

	settings.Resolution = models.Resolution4K
	settings.Dubbing.Enabled = true

	assert.Equal(t, models.Resolution1080p, p.Settings.Resolution)
	assert.False(t, p.Settings.Dubbing.Enabled)
}

func TestFactoryAllocationFailure(t *testing.T) {
	factory := NewFactory(failingAllocator{})

	p, err := factory.Create(context.Background(), sizedFile("clip.mp4", 10), models.DefaultVideoSettings())
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestPendingStepsIndependent(t *testing.T) {
	a := PendingSteps()
	a[0].Status = models.StepStatusCompleted

	b := PendingSteps()
	assert.Equal(t, models.StepStatusPending, b[0].Status)
}
