// Package webhook delivers project lifecycle events to configured HTTP
// endpoints, signed with HMAC-SHA256 and retried with backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/google/uuid"
)

// Payload is the JSON body posted to every endpoint
type Payload struct {
	Event     models.EventType    `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	Data      models.ProjectEvent `json:"data"`
}

// Delivery is one payload on its way to one endpoint
type Delivery struct {
	ID         string
	URL        string
	Event      models.EventType
	Payload    []byte
	Attempts   int
	StatusCode int
}

// Retry delays between attempts: 1s, 5s, 15s
var defaultRetryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

// Service handles webhook delivery and retry logic
type Service struct {
	client    *http.Client
	endpoints []string
	secret    string
	delays    []time.Duration
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a webhook publisher for cfg.URLs
func NewService(cfg config.WebhookConfig, logger *logging.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	delays := defaultRetryDelays
	if len(cfg.Retries) > 0 {
		delays = cfg.Retries
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoints: cfg.URLs,
		secret:    cfg.Secret,
		delays:    delays,
		logger:    logger.WithComponent("webhook"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publish queues a delivery of e to every endpoint and returns without
// waiting. Per-tick progress events are not delivered.
func (s *Service) Publish(ctx context.Context, e models.ProjectEvent) error {
	deliveries, err := s.deliveries(e)
	if err != nil || len(deliveries) == 0 {
		return err
	}

	for _, d := range deliveries {
		s.wg.Add(1)
		go func(d *Delivery) {
			defer s.wg.Done()
			_ = s.deliver(s.ctx, d)
		}(d)
	}

	metrics.RecordEventPublished("webhook", string(e.Type))
	return nil
}

// Deliver sends e to every endpoint and returns once each one has accepted it
// or run out of retries. The error lists the endpoints that never accepted it.
func (s *Service) Deliver(ctx context.Context, e models.ProjectEvent) error {
	deliveries, err := s.deliveries(e)
	if err != nil || len(deliveries) == 0 {
		return err
	}

	var errs []error
	for _, d := range deliveries {
		if err := s.deliver(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.URL, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	metrics.RecordEventPublished("webhook", string(e.Type))
	return nil
}

// Close abandons pending retries and waits for in-flight deliveries
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) deliveries(e models.ProjectEvent) ([]*Delivery, error) {
	if e.Type == models.EventStepProgress || len(s.endpoints) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(Payload{Event: e.Type, Timestamp: e.Timestamp, Data: e})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	out := make([]*Delivery, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		out = append(out, &Delivery{
			ID:      uuid.New().String(),
			URL:     endpoint,
			Event:   e.Type,
			Payload: payload,
		})
	}
	return out, nil
}

func (s *Service) deliver(ctx context.Context, d *Delivery) error {
	for {
		err := s.attempt(ctx, d)
		if err == nil {
			s.logger.WithFields(map[string]interface{}{
				"delivery_id": d.ID,
				"event":       d.Event,
				"attempts":    d.Attempts,
			}).Debug("webhook delivered")
			return nil
		}

		if d.Attempts > len(s.delays) {
			metrics.RecordError("webhook", "delivery_failed")
			s.logger.WithFields(map[string]interface{}{
				"delivery_id": d.ID,
				"url":         d.URL,
				"status_code": d.StatusCode,
			}).WithError(err).Error("webhook delivery failed")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delays[d.Attempts-1]):
		}
	}
}

func (s *Service) attempt(ctx context.Context, d *Delivery) error {
	d.Attempts++

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ClipWave-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", string(d.Event))
	req.Header.Set("X-Webhook-Delivery", d.ID)

	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(d.Payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	d.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the HMAC-SHA256 signature header value for payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
