package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []models.ProjectEvent
	err    error
}

func (r *recorder) Publish(ctx context.Context, e models.ProjectEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func TestNew(t *testing.T) {
	e := New(models.EventProcessingStarted, "user-1", "project-1")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, models.EventProcessingStarted, e.Type)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, "project-1", e.ProjectID)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
	assert.NotEqual(t, e.ID, New(models.EventProcessingStarted, "user-1", "project-1").ID)
}

func TestMulti(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("broker down")}
	c := &recorder{}

	err := Multi{a, nil, b, c}.Publish(context.Background(), New(models.EventStepProgress, "u", "p"))

	assert.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1, "a failing publisher must not stop the others")

	assert.NoError(t, Nop{}.Publish(context.Background(), models.ProjectEvent{}))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(logging.Nop())
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initial := New(models.EventStepProgress, "u", "project-1")
		hub.Serve(w, r, "project-1", &initial)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first models.ProjectEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "project-1", first.ProjectID)

	require.Eventually(t, func() bool { return hub.Subscribers("project-1") == 1 }, time.Second, 10*time.Millisecond)

	// Events of other projects are not delivered
	require.NoError(t, hub.Publish(context.Background(), New(models.EventStepProgress, "u", "project-2")))

	done := New(models.EventProcessingCompleted, "u", "project-1")
	done.Status = models.ProjectStatusCompleted
	require.NoError(t, hub.Publish(context.Background(), done))

	var got models.ProjectEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, done.ID, got.ID)
	assert.Equal(t, models.ProjectStatusCompleted, got.Status)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers("project-1") == 0 }, time.Second, 10*time.Millisecond)
}

// serverConn returns the server side of a live websocket connection
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := upgrader.Upgrade(w, r, nil); err == nil {
			conns <- c
		}
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-conns:
		return c
	case <-time.After(time.Second):
		t.Fatal("websocket upgrade timed out")
		return nil
	}
}

func TestHubSlowSubscriber(t *testing.T) {
	hub := NewHub(logging.Nop())
	defer hub.Close()
	ctx := context.Background()

	// No write pump, so nothing drains the buffer
	stalled := newSubscriber(serverConn(t))
	hub.mu.Lock()
	hub.subs["project-1"] = map[*subscriber]struct{}{stalled: {}}
	hub.mu.Unlock()
	metrics.WebsocketSubscribers.Inc()

	start := time.Now()
	for i := 0; i < sendBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, New(models.EventStepProgress, "u", "project-1")))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, stalled.send, sendBuffer)
	assert.Equal(t, 1, hub.Subscribers("project-1"), "missed ticks keep the subscriber")

	require.NoError(t, hub.Publish(ctx, New(models.EventProcessingCompleted, "u", "project-1")))
	assert.Equal(t, 0, hub.Subscribers("project-1"))

	select {
	case <-stalled.done:
	default:
		t.Error("lagging subscriber not stopped")
	}
}
