package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how far a subscriber may fall behind before events are dropped
	sendBuffer = 64
)

// subscriber owns one connection. Only writePump writes data frames to it.
type subscriber struct {
	conn *websocket.Conn
	send chan interface{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan interface{}, sendBuffer),
		done: make(chan struct{}),
	}
}

// offer queues v without blocking and reports false when the buffer is full
func (s *subscriber) offer(v interface{}) bool {
	select {
	case <-s.done:
		return true
	case s.send <- v:
		return true
	default:
		return false
	}
}

func (s *subscriber) writePump(onError func()) {
	for {
		select {
		case <-s.done:
			return
		case v := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(v); err != nil {
				onError()
				return
			}
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Hub broadcasts events to websocket subscribers of a project
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates an empty hub
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// Publish queues e for every subscriber of e.ProjectID and never waits on a
// connection. A subscriber whose buffer is full misses progress ticks; any
// other event it cannot take disconnects it, and the client reconnects to the
// current state.
func (h *Hub) Publish(ctx context.Context, e models.ProjectEvent) error {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs[e.ProjectID]))
	for s := range h.subs[e.ProjectID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if s.offer(e) {
			continue
		}
		if e.Type == models.EventStepProgress {
			metrics.RecordError("websocket", "progress_dropped")
			continue
		}
		h.logger.WithProjectID(e.ProjectID).Warnf("subscriber too slow for %s, disconnecting", e.Type)
		h.remove(e.ProjectID, s)
	}

	if len(subs) > 0 {
		metrics.RecordEventPublished("websocket", string(e.Type))
	}
	return nil
}

// Serve upgrades the request and streams events of projectID until the
// client disconnects. initial, when set, is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, projectID string, initial *models.ProjectEvent) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return err
	}

	sub := newSubscriber(conn)
	if initial != nil {
		sub.send <- initial
	}

	h.mu.Lock()
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[*subscriber]struct{})
	}
	h.subs[projectID][sub] = struct{}{}
	h.mu.Unlock()
	metrics.WebsocketSubscribers.Inc()

	go sub.writePump(func() { h.remove(projectID, sub) })

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(projectID, sub)
	return nil
}

// Subscribers returns the number of live subscribers of projectID
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[projectID])
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*subscriber
	for projectID, subs := range h.subs {
		for s := range subs {
			all = append(all, s)
		}
		delete(h.subs, projectID)
	}
	h.mu.Unlock()

	for _, s := range all {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		s.stop()
		metrics.WebsocketSubscribers.Dec()
	}
}

func (h *Hub) remove(projectID string, s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[projectID][s]
	if ok {
		delete(h.subs[projectID], s)
		if len(h.subs[projectID]) == 0 {
			delete(h.subs, projectID)
		}
	}
	h.mu.Unlock()

	if ok {
		s.stop()
		metrics.WebsocketSubscribers.Dec()
	}
}
