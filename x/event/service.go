// Package event reads storefront events and tracks per-channel activity
package event

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("event")

type service struct {
	repo Repository
}

// NewService creates a new event service
func NewService(repo Repository) core.EventService {
	return &service{repo}
}

func (s *service) Get(ctx context.Context, id string) (core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.Get")
	defer span.End()

	span.SetAttributes(attribute.String("event", id))

	return s.repo.Get(ctx, id)
}

// ListOrganized returns the events organized by wallet
func (s *service) ListOrganized(ctx context.Context, wallet string) ([]core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.ListOrganized")
	defer span.End()

	return s.repo.ListByOrganizer(ctx, wallet)
}

// ListHeld returns the events wallet holds a ticket for, per the ownership records
func (s *service) ListHeld(ctx context.Context, wallet string) ([]core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.ListHeld")
	defer span.End()

	return s.repo.ListByTicketOwner(ctx, wallet)
}

// Touch records messageID as the latest message of the channel
func (s *service) Touch(ctx context.Context, eventID, messageID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Event.Service.Touch")
	defer span.End()

	err := s.repo.UpsertActivity(ctx, core.ChannelActivity{
		EventID:       eventID,
		LastMessageID: messageID,
		LastMessageAt: at,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetActivities returns the activity rows that exist for eventIDs keyed by event id
func (s *service) GetActivities(ctx context.Context, eventIDs []string) (map[string]core.ChannelActivity, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.GetActivities")
	defer span.End()

	activities, err := s.repo.GetActivities(ctx, eventIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make(map[string]core.ChannelActivity, len(activities))
	for _, activity := range activities {
		result[activity.EventID] = activity
	}
	return result, nil
}
