// Package events fans project events out to live subscribers and brokers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/clipwave/clipwave/pkg/models"
	"github.com/google/uuid"
)

// Publisher delivers a project event
type Publisher interface {
	Publish(ctx context.Context, e models.ProjectEvent) error
}

// New builds an event with a fresh id and the current time
func New(eventType models.EventType, userID, projectID string) models.ProjectEvent {
	return models.ProjectEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		UserID:    userID,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
	}
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e models.ProjectEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(ctx context.Context, e models.ProjectEvent) error {
	return nil
}
