// Package project builds new VideoProjects from uploaded files.
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
)

// Stage is a fixed phase of the processing pipeline
type Stage struct {
	ID          string
	Name        string
	Description string
}

// Stages is the pipeline in execution order
var Stages = []Stage{
	{ID: "upload", Name: "Upload", Description: "Enviando vídeo para a nuvem"},
	{ID: "transcription", Name: "Transcrição", Description: "Extraindo áudio e gerando legendas com IA"},
	{ID: "analysis", Name: "Análise", Description: "Detectando melhores momentos e pausas"},
	{ID: "editing", Name: "Edição", Description: "Aplicando cortes e efeitos automáticos"},
	{ID: "rendering", Name: "Renderização", Description: "Gerando vídeo final em alta qualidade"},
}

// Allocator hands out object URLs bound to a file's bytes
type Allocator interface {
	Create(ctx context.Context, file *models.RawFile) (string, error)
}

// Factory creates projects
type Factory struct {
	urls Allocator
	now  func() time.Time
}

// NewFactory creates a factory allocating URLs from urls
func NewFactory(urls Allocator) *Factory {
	return &Factory{urls: urls, now: time.Now}
}

// PendingSteps returns a fresh step sequence with every stage pending
func PendingSteps() []models.ProcessingStep {
	steps := make([]models.ProcessingStep, len(Stages))
	for i, s := range Stages {
		steps[i] = models.ProcessingStep{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      models.StepStatusPending,
			Progress:    0,
		}
	}
	return steps
}

// Create builds a project for an already validated file. It allocates a new
// object URL for the original video and never releases one; the caller owns it.
func (f *Factory) Create(ctx context.Context, file *models.RawFile, settings models.VideoSettings) (*models.VideoProject, error) {
	url, err := f.urls.Create(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate object url: %w", err)
	}

	now := f.now()
	p := &models.VideoProject{
		ID:   videoutil.GenerateID(),
		Name: videoutil.StripExtension(file.Name),
		OriginalVideo: models.VideoFile{
			ID:        videoutil.GenerateID(),
			Name:      file.Name,
			Size:      file.Size,
			Type:      file.Type,
			URL:       url,
			Status:    models.FileStatusUploading,
			Progress:  0,
			CreatedAt: now,
		},
		Steps:     PendingSteps(),
		Settings:  settings.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Status = p.DeriveStatus()

	return p, nil
}
