package processing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/persist"
	"github.com/clipwave/clipwave/internal/project"
	"github.com/clipwave/clipwave/internal/simulator"
	"github.com/clipwave/clipwave/internal/store"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []models.ProjectEvent
}

func (r *recorder) Publish(ctx context.Context, e models.ProjectEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EventType
	for _, e := range r.events {
		if e.Type != models.EventStepProgress {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *recorder) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	service  *Service
	sessions *store.Manager
	registry *blob.Registry
	adapter  *persist.Memory
	factory  *project.Factory
	events   *recorder
}

func newHarness(t *testing.T, sim *simulator.Simulator) *harness {
	t.Helper()
	registry := blob.NewRegistry(blob.NewMemoryBackend(), logging.Nop())
	adapter := persist.NewMemory()
	sessions := store.NewManager(registry, adapter, logging.Nop())
	rec := &recorder{}

	return &harness{
		service:  NewService(sessions, sim, rec, logging.Nop()),
		sessions: sessions,
		registry: registry,
		adapter:  adapter,
		factory:  project.NewFactory(registry),
		events:   rec,
	}
}

func virtualSim(fault simulator.FaultFunc) *simulator.Simulator {
	return simulator.New(simulator.Config{
		Clock: simulator.NewVirtualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Fault: fault,
	})
}

// blockingSim never finishes a tick on its own
func blockingSim() *simulator.Simulator {
	return simulator.New(simulator.Config{StepDuration: time.Hour, TickInterval: time.Hour})
}

func (h *harness) upload(t *testing.T, userID string) (*store.Store, *models.VideoProject) {
	t.Helper()
	st, p, err := h.stage(context.Background(), userID)
	require.NoError(t, err)
	return st, p
}

// stage runs the upload flow without a *testing.T so it can be called from
// the simulator goroutine.
func (h *harness) stage(ctx context.Context, userID string) (*store.Store, *models.VideoProject, error) {
	st, err := h.sessions.For(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	file := models.NewRawFile("clip.mp4", models.MimeTypeMP4, 6, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("frames"))), nil
	})
	p, err := h.factory.Create(ctx, file, st.VideoSettings())
	if err != nil {
		return nil, nil, err
	}
	if err := st.SetCurrentVideoFile(ctx, file); err != nil {
		return nil, nil, err
	}
	st.AddProject(p)
	return st, p, nil
}

func TestStartCompletes(t *testing.T) {
	h := newHarness(t, virtualSim(nil))
	st, p := h.upload(t, "alice")
	url := st.CurrentVideoURL()

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))

	result, ok := h.service.Wait("alice", p.ID)
	require.True(t, ok)
	assert.Equal(t, simulator.Completed, result.Outcome)

	current := st.CurrentProject()
	assert.Equal(t, models.ProjectStatusCompleted, current.Status)
	require.NotNil(t, current.ProcessedVideo)
	assert.Equal(t, "processed-"+p.OriginalVideo.ID, current.ProcessedVideo.ID)
	assert.Equal(t, url, current.ProcessedVideo.URL)
	assert.Equal(t, models.FileStatusCompleted, current.ProcessedVideo.Status)
	assert.Equal(t, 100, current.ProcessedVideo.Progress)
	assert.Equal(t, p.OriginalVideo.Size, current.ProcessedVideo.Size)
	for _, step := range current.Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status)
		assert.Equal(t, 100, step.Progress)
	}

	listed, _ := st.Project(p.ID)
	assert.Equal(t, current, listed)

	assert.Equal(t, url, st.CurrentVideoURL())
	assert.True(t, h.registry.Alive(url))
	assert.False(t, st.IsProcessing())
	assert.False(t, h.service.Running("alice", p.ID))

	assert.Equal(t, []models.EventType{models.EventProcessingStarted, models.EventProcessingCompleted}, h.events.types())
	assert.Equal(t, 300, h.events.count(models.EventStepProgress))

	_, err := h.adapter.Load(context.Background(), persist.StorageKey("alice"))
	assert.NoError(t, err, "session saved after the run")
}

func TestStartMissingState(t *testing.T) {
	ctx := context.Background()

	t.Run("no current project", func(t *testing.T) {
		h := newHarness(t, virtualSim(nil))
		err := h.service.Start(ctx, "alice", "nope")

		var missing *store.MissingStateError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "/upload", missing.Redirect())
	})

	t.Run("project not current", func(t *testing.T) {
		h := newHarness(t, virtualSim(nil))
		st, p := h.upload(t, "alice")
		st.SetCurrentProject(nil)

		err := h.service.Start(ctx, "alice", p.ID)
		var missing *store.MissingStateError
		assert.True(t, errors.As(err, &missing))
	})

	t.Run("no file or url", func(t *testing.T) {
		h := newHarness(t, virtualSim(nil))
		st, p := h.upload(t, "alice")
		require.NoError(t, st.SetCurrentVideoFile(ctx, nil))

		err := h.service.Start(ctx, "alice", p.ID)
		var missing *store.MissingStateError
		assert.True(t, errors.As(err, &missing))
		assert.False(t, st.IsProcessing())
	})
}

func TestStartAllocatesMissingURL(t *testing.T) {
	h := newHarness(t, virtualSim(nil))
	st, p := h.upload(t, "alice")
	st.SetCurrentVideoURL("")

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	h.service.Wait("alice", p.ID)

	url := st.CurrentVideoURL()
	assert.NotEmpty(t, url)
	assert.Equal(t, url, st.CurrentProject().ProcessedVideo.URL)
}

func TestStartTwiceAndCancel(t *testing.T) {
	h := newHarness(t, blockingSim())
	st, p := h.upload(t, "alice")
	ctx := context.Background()

	require.NoError(t, h.service.Start(ctx, "alice", p.ID))
	assert.True(t, st.IsProcessing())
	assert.True(t, h.service.Running("alice", p.ID))

	assert.ErrorIs(t, h.service.Start(ctx, "alice", p.ID), ErrAlreadyRunning)

	assert.True(t, h.service.Cancel("alice", p.ID))
	result, ok := h.service.Wait("alice", p.ID)
	require.True(t, ok)
	assert.Equal(t, simulator.Cancelled, result.Outcome)

	current := st.CurrentProject()
	assert.Equal(t, models.ProjectStatusPending, current.Status)
	assert.Nil(t, current.ProcessedVideo)
	for _, step := range current.Steps {
		assert.Equal(t, models.StepStatusPending, step.Status)
	}
	assert.False(t, st.IsProcessing())
	assert.False(t, h.service.Cancel("alice", p.ID))
	assert.Contains(t, h.events.types(), models.EventProcessingCancelled)
}

func TestStartFailure(t *testing.T) {
	h := newHarness(t, virtualSim(func(stepIndex, progress int) error {
		if stepIndex == 2 && progress >= 50 {
			return errors.New("analysis crashed")
		}
		return nil
	}))
	st, p := h.upload(t, "alice")

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	result, _ := h.service.Wait("alice", p.ID)
	assert.Equal(t, simulator.Failed, result.Outcome)

	current := st.CurrentProject()
	assert.Equal(t, models.ProjectStatusFailed, current.Status)
	assert.Equal(t, models.StepStatusCompleted, current.Steps[1].Status)
	assert.Equal(t, models.StepStatusError, current.Steps[2].Status)
	assert.Equal(t, models.StepStatusPending, current.Steps[3].Status)
	assert.Nil(t, current.ProcessedVideo)
	assert.False(t, st.IsProcessing())
	assert.Equal(t, []models.EventType{models.EventProcessingStarted, models.EventProcessingFailed}, h.events.types())

	// A failed project can be run again
	h.service.sim = virtualSim(nil)
	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	result, _ = h.service.Wait("alice", p.ID)
	assert.Equal(t, simulator.Completed, result.Outcome)
	assert.Equal(t, models.ProjectStatusCompleted, st.CurrentProject().Status)
}

func TestStartAlreadyProcessed(t *testing.T) {
	h := newHarness(t, virtualSim(nil))
	_, p := h.upload(t, "alice")

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	h.service.Wait("alice", p.ID)

	assert.ErrorIs(t, h.service.Start(context.Background(), "alice", p.ID), ErrAlreadyProcessed)
}

func TestUploadDuringRunKeepsProcessedURL(t *testing.T) {
	var (
		h         *harness
		once      sync.Once
		second    *models.VideoProject
		secondURL string
		uploadErr error
	)
	h = newHarness(t, virtualSim(func(stepIndex, progress int) error {
		if stepIndex == 2 {
			once.Do(func() {
				var st *store.Store
				st, second, uploadErr = h.stage(context.Background(), "alice")
				if uploadErr == nil {
					secondURL = st.CurrentVideoURL()
				}
			})
		}
		return nil
	}))
	st, p := h.upload(t, "alice")
	runURL := st.CurrentVideoURL()

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	result, _ := h.service.Wait("alice", p.ID)
	require.NoError(t, uploadErr)
	require.NotNil(t, second)
	assert.Equal(t, simulator.Completed, result.Outcome)

	done, ok := st.Project(p.ID)
	require.True(t, ok)
	require.NotNil(t, done.ProcessedVideo)
	assert.Equal(t, runURL, done.ProcessedVideo.URL)
	assert.True(t, h.registry.Alive(done.ProcessedVideo.URL), "processed url revoked by the upload")

	// The newer upload stays current and keeps its own url
	assert.Equal(t, second.ID, st.CurrentProject().ID)
	assert.Equal(t, secondURL, st.CurrentVideoURL())
	assert.True(t, h.registry.Alive(secondURL))
}

func TestOneRunPerSession(t *testing.T) {
	h := newHarness(t, blockingSim())
	ctx := context.Background()
	st, a := h.upload(t, "alice")
	urlA := st.CurrentVideoURL()

	require.NoError(t, h.service.Start(ctx, "alice", a.ID))
	_, b := h.upload(t, "alice")

	assert.ErrorIs(t, h.service.Start(ctx, "alice", b.ID), ErrAlreadyRunning)
	assert.False(t, h.service.Running("alice", b.ID))
	assert.True(t, st.IsProcessing())

	h.service.Cancel("alice", a.ID)
	h.service.Wait("alice", a.ID)
	assert.False(t, st.IsProcessing())
	assert.False(t, h.registry.Alive(urlA), "cancelled run releases its orphaned url")

	require.NoError(t, h.service.Start(ctx, "alice", b.ID))
	assert.True(t, st.IsProcessing())
	h.service.Cancel("alice", b.ID)
	h.service.Wait("alice", b.ID)
}

func TestForget(t *testing.T) {
	h := newHarness(t, virtualSim(nil))
	_, p := h.upload(t, "alice")

	require.NoError(t, h.service.Start(context.Background(), "alice", p.ID))
	h.service.Wait("alice", p.ID)
	_, ok := h.service.Wait("alice", p.ID)
	require.True(t, ok)

	h.service.Forget("alice", p.ID)
	_, ok = h.service.Wait("alice", p.ID)
	assert.False(t, ok)
}

func TestWaitUnknown(t *testing.T) {
	h := newHarness(t, virtualSim(nil))
	_, ok := h.service.Wait("alice", "never")
	assert.False(t, ok)
}

func TestShutdownCancelsRuns(t *testing.T) {
	h := newHarness(t, blockingSim())
	stA, pA := h.upload(t, "alice")
	stB, pB := h.upload(t, "bob")

	require.NoError(t, h.service.Start(context.Background(), "alice", pA.ID))
	require.NoError(t, h.service.Start(context.Background(), "bob", pB.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.service.Shutdown(ctx))

	assert.False(t, stA.IsProcessing())
	assert.False(t, stB.IsProcessing())
	assert.False(t, h.service.Running("alice", pA.ID))
	assert.False(t, h.service.Running("bob", pB.ID))
}

func TestProgressSteps(t *testing.T) {
	steps := progressSteps(project.PendingSteps(), 2, 40)

	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, 100, steps[1].Progress)
	assert.Equal(t, models.StepStatusProcessing, steps[2].Status)
	assert.Equal(t, 40, steps[2].Progress)
	assert.Equal(t, models.StepStatusPending, steps[3].Status)
	assert.Equal(t, 0, steps[4].Progress)
}
