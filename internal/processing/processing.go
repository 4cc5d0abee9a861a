// Package processing drives simulated pipeline runs into session stores.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/events"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/simulator"
	"github.com/clipwave/clipwave/internal/store"
	"github.com/clipwave/clipwave/internal/tracing"
	"github.com/clipwave/clipwave/pkg/models"
)

var (
	// ErrAlreadyRunning is returned by Start while the session has an active run
	ErrAlreadyRunning = errors.New("processing already running")
	// ErrAlreadyProcessed is returned by Start for a project that has a processed video
	ErrAlreadyProcessed = errors.New("project already processed")
)

// Sessions resolves a user's store
type Sessions interface {
	For(ctx context.Context, userID string) (*store.Store, error)
}

type runKey struct {
	userID    string
	projectID string
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	result simulator.Result
}

// Service starts, tracks and cancels processing runs
type Service struct {
	sessions  Sessions
	sim       *simulator.Simulator
	publisher events.Publisher
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	runs     map[runKey]*run
	finished map[runKey]simulator.Result
	wg       sync.WaitGroup
}

// NewService creates a processing service
func NewService(sessions Sessions, sim *simulator.Simulator, publisher events.Publisher, logger *logging.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		sessions:  sessions,
		sim:       sim,
		publisher: publisher,
		logger:    logger.WithComponent("processing"),
		now:       time.Now,
		runs:      make(map[runKey]*run),
		finished:  make(map[runKey]simulator.Result),
	}
}

// Start launches a run for the user's current project. The project must be
// current and the session must hold a video file or URL.
func (s *Service) Start(ctx context.Context, userID, projectID string) error {
	st, err := s.sessions.For(ctx, userID)
	if err != nil {
		return err
	}

	p := st.CurrentProject()
	if p == nil {
		return &store.MissingStateError{What: "current project"}
	}
	if p.ID != projectID {
		return &store.MissingStateError{What: fmt.Sprintf("project %s is not the current project", projectID)}
	}
	if st.CurrentVideoFile() == nil && st.CurrentVideoURL() == "" {
		return &store.MissingStateError{What: "video file or url"}
	}
	if p.Status == models.ProjectStatusCompleted {
		return ErrAlreadyProcessed
	}

	key := runKey{userID: userID, projectID: projectID}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The processing flag is per session, so one run at a time
	if _, running := s.runs[key]; running || st.IsProcessing() {
		return ErrAlreadyRunning
	}

	url, err := st.EnsureCurrentVideoURL(ctx)
	if err != nil {
		return err
	}
	if url == "" {
		return &store.MissingStateError{What: "video url"}
	}

	st.Pin(url)
	st.SetIsProcessing(true)

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[key] = r
	s.wg.Add(1)

	s.publish(events.New(models.EventProcessingStarted, userID, projectID))
	go s.execute(runCtx, key, r, st, p, url)

	return nil
}

// Cancel stops a run. It reports whether a run was active.
func (s *Service) Cancel(userID, projectID string) bool {
	s.mu.Lock()
	r, ok := s.runs[runKey{userID: userID, projectID: projectID}]
	s.mu.Unlock()

	if ok {
		r.cancel()
	}
	return ok
}

// Running reports whether a run is active for the project
func (s *Service) Running(userID, projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[runKey{userID: userID, projectID: projectID}]
	return ok
}

// Wait blocks until the active run of the project ends and returns its
// result. Without an active run it returns the last finished result; the
// second value is false when the project never ran.
func (s *Service) Wait(userID, projectID string) (simulator.Result, bool) {
	key := runKey{userID: userID, projectID: projectID}

	s.mu.Lock()
	r, ok := s.runs[key]
	if !ok {
		result, finished := s.finished[key]
		s.mu.Unlock()
		return result, finished
	}
	s.mu.Unlock()

	<-r.done
	return r.result, true
}

// Forget drops the last finished result of a project
func (s *Service) Forget(userID, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.finished, runKey{userID: userID, projectID: projectID})
}

// Shutdown cancels every run and waits for them to finish or for ctx to end
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) execute(ctx context.Context, key runKey, r *run, st *store.Store, p *models.VideoProject, url string) {
	defer s.wg.Done()

	span, _ := tracing.StartSpan(context.Background(), "processing.run")
	tracing.SetTag(span, "user_id", key.userID)
	tracing.SetTag(span, "project_id", key.projectID)

	logger := s.logger.WithUserID(key.userID).WithProjectID(key.projectID)
	start := time.Now()
	metrics.RecordProcessingStarted()
	logger.LogProjectEvent(p.ID, string(models.EventProcessingStarted), string(models.ProjectStatusProcessing), map[string]interface{}{
		"url": url,
	})

	onProgress := func(stepIndex, progress int) {
		steps := progressSteps(p.Steps, stepIndex, progress)
		if err := st.UpdateProject(p.ID, models.ProjectPatch{Steps: steps}); err != nil {
			logger.ErrorWithErr("failed to record step progress", err)
			return
		}
		logger.LogStepProgress(p.ID, stepIndex, progress)

		e := events.New(models.EventStepProgress, key.userID, p.ID)
		e.StepIndex = stepIndex
		e.Progress = progress
		e.Status = models.ProjectStatusProcessing
		s.publish(e)
	}

	onComplete := func() {
		processed := models.VideoFile{
			ID:        "processed-" + p.OriginalVideo.ID,
			Name:      p.OriginalVideo.Name,
			Size:      p.OriginalVideo.Size,
			Type:      p.OriginalVideo.Type,
			URL:       url,
			Status:    models.FileStatusCompleted,
			Progress:  100,
			CreatedAt: s.now(),
		}
		patch := models.ProjectPatch{
			Steps:          stepsWith(p.Steps, models.StepStatusCompleted, 100),
			ProcessedVideo: &processed,
		}
		if err := st.UpdateProject(p.ID, patch); err != nil {
			logger.ErrorWithErr("failed to record processed video", err)
		}
		if !st.SetCurrentVideoURLFor(p.ID, url) {
			logger.Debug("project no longer current, current url left unchanged")
		}
	}

	result := s.sim.Run(ctx, p.ID, onProgress, onComplete)

	var final models.ProjectEvent
	switch result.Outcome {
	case simulator.Completed:
		final = events.New(models.EventProcessingCompleted, key.userID, p.ID)
		final.Status = models.ProjectStatusCompleted
		final.Progress = 100
	case simulator.Cancelled:
		if err := st.UpdateProject(p.ID, models.ProjectPatch{Steps: stepsWith(p.Steps, models.StepStatusPending, 0)}); err != nil {
			logger.ErrorWithErr("failed to reset steps", err)
		}
		final = events.New(models.EventProcessingCancelled, key.userID, p.ID)
		final.Status = models.ProjectStatusPending
	case simulator.Failed:
		steps := progressSteps(p.Steps, result.StepIndex, result.Progress)
		if result.StepIndex < len(steps) {
			steps[result.StepIndex].Status = models.StepStatusError
		}
		if err := st.UpdateProject(p.ID, models.ProjectPatch{Steps: steps}); err != nil {
			logger.ErrorWithErr("failed to record step failure", err)
		}
		final = events.New(models.EventProcessingFailed, key.userID, p.ID)
		final.Status = models.ProjectStatusFailed
		if result.Err != nil {
			final.Error = result.Err.Error()
		}
		tracing.LogError(span, result.Err)
		metrics.RecordError("processing", "run_failed")
	}
	final.StepIndex = result.StepIndex
	if final.Progress == 0 {
		final.Progress = result.Progress
	}

	st.Unpin(context.Background(), url)
	st.SetIsProcessing(false)
	if err := st.Save(context.Background()); err != nil {
		logger.ErrorWithErr("failed to save session", err)
	}

	duration := time.Since(start)
	metrics.RecordProcessingFinished(string(result.Outcome), duration.Seconds())
	tracing.SetTag(span, "outcome", string(result.Outcome))
	tracing.FinishSpan(span)
	logger.LogProjectEvent(p.ID, string(final.Type), string(final.Status), map[string]interface{}{
		"step_index":  result.StepIndex,
		"duration_ms": duration.Milliseconds(),
	})

	s.publish(final)

	s.mu.Lock()
	r.result = result
	delete(s.runs, key)
	s.finished[key] = result
	s.mu.Unlock()
	r.cancel()
	close(r.done)
}

func (s *Service) publish(e models.ProjectEvent) {
	if err := s.publisher.Publish(context.Background(), e); err != nil {
		s.logger.WithProjectID(e.ProjectID).WithError(err).Warnf("failed to publish %s", e.Type)
	}
}

// progressSteps marks steps before index completed, index processing at
// progress, and the rest pending.
func progressSteps(base []models.ProcessingStep, index, progress int) []models.ProcessingStep {
	steps := append([]models.ProcessingStep(nil), base...)
	for i := range steps {
		switch {
		case i < index:
			steps[i].Status, steps[i].Progress = models.StepStatusCompleted, 100
		case i == index:
			steps[i].Status, steps[i].Progress = models.StepStatusProcessing, progress
		default:
			steps[i].Status, steps[i].Progress = models.StepStatusPending, 0
		}
	}
	return steps
}

func stepsWith(base []models.ProcessingStep, status models.StepStatus, progress int) []models.ProcessingStep {
	steps := append([]models.ProcessingStep(nil), base...)
	for i := range steps {
		steps[i].Status, steps[i].Progress = status, progress
	}
	return steps
}
