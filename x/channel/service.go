// Package channel is the request layer of event chat channels
package channel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/x/filter"
)

var tracer = otel.Tracer("channel")

type service struct {
	event    core.EventService
	message  core.MessageService
	profile  core.ProfileService
	access   core.AccessService
	limiter  core.RateLimiter
	realtime core.RealtimeService
}

// NewService creates a new channel gateway
func NewService(
	event core.EventService,
	message core.MessageService,
	profile core.ProfileService,
	access core.AccessService,
	limiter core.RateLimiter,
	realtime core.RealtimeService,
) core.ChannelService {
	return &service{
		event:    event,
		message:  message,
		profile:  profile,
		access:   access,
		limiter:  limiter,
		realtime: realtime,
	}
}

// Authorize resolves the event and verifies that wallet is a member of its channel
func (s *service) Authorize(ctx context.Context, eventID, wallet string) (core.Event, error) {
	ctx, span := tracer.Start(ctx, "Channel.Service.Authorize")
	defer span.End()

	if !core.IsUUID(eventID) {
		return core.Event{}, core.NewErrorInvalidArgument("invalid event id")
	}
	wallet, err := core.NormalizeWallet(wallet)
	if err != nil {
		return core.Event{}, err
	}

	event, err := s.lookupEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return core.Event{}, err
	}

	err = s.gate(ctx, event, wallet)
	if err != nil {
		return core.Event{}, err
	}

	return event, nil
}

// ListMessages returns one page of the channel as seen by wallet
func (s *service) ListMessages(ctx context.Context, eventID, wallet string, before *time.Time) (core.MessagePage, error) {
	ctx, span := tracer.Start(ctx, "Channel.Service.ListMessages")
	defer span.End()

	event, err := s.Authorize(ctx, eventID, wallet)
	if err != nil {
		span.RecordError(err)
		return core.MessagePage{}, err
	}

	return s.message.List(ctx, event.ID, strings.ToLower(wallet), before)
}

// SendMessage posts a message into the channel.
// Checks run in order: formats, event, profile, membership, rate limit, content.
func (s *service) SendMessage(ctx context.Context, eventID, wallet, content string, replyTo *string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Channel.Service.SendMessage")
	defer span.End()

	if !core.IsUUID(eventID) {
		return core.Message{}, core.NewErrorInvalidArgument("invalid event id")
	}
	wallet, err := core.NormalizeWallet(wallet)
	if err != nil {
		return core.Message{}, err
	}
	if strings.TrimSpace(content) == "" {
		return core.Message{}, core.NewErrorInvalidArgument("content is required")
	}
	if replyTo != nil && !core.IsUUID(*replyTo) {
		return core.Message{}, core.NewErrorInvalidArgument("invalid reply target id")
	}

	span.SetAttributes(attribute.String("event", eventID))

	event, err := s.lookupEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	_, err = s.profile.Get(ctx, wallet)
	if err != nil {
		if errors.As(err, new(core.ErrorNotFound)) {
			return core.Message{}, core.NewErrorUnauthenticated()
		}
		span.RecordError(err)
		return core.Message{}, err
	}

	err = s.gate(ctx, event, wallet)
	if err != nil {
		return core.Message{}, err
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, wallet)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, core.NewErrorUpstream(err)
	}
	if !allowed {
		return core.Message{}, core.NewErrorRateLimited(retryAfter)
	}

	clean, err := filter.Sanitize(content)
	if err != nil {
		return core.Message{}, err
	}

	message, err := s.message.Send(ctx, event, wallet, clean, replyTo)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	err = s.event.Touch(ctx, event.ID, message.ID, message.CreatedAt)
	if err != nil {
		slog.WarnContext(
			ctx, "failed to update channel activity",
			slog.String("error", err.Error()),
			slog.String("event", event.ID),
			slog.String("module", "channel"),
		)
	}

	s.publish(ctx, core.SignalInsert, message)

	return message, nil
}

// EditMessage replaces the content of a message authored by wallet
func (s *service) EditMessage(ctx context.Context, messageID, wallet, content string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Channel.Service.EditMessage")
	defer span.End()

	if !core.IsUUID(messageID) {
		return core.Message{}, core.NewErrorInvalidArgument("invalid message id")
	}
	wallet, err := core.NormalizeWallet(wallet)
	if err != nil {
		return core.Message{}, err
	}

	clean, err := filter.Sanitize(content)
	if err != nil {
		return core.Message{}, err
	}

	message, err := s.message.Edit(ctx, messageID, wallet, clean)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	s.publish(ctx, core.SignalUpdate, message)

	return message, nil
}

// DeleteMessage deletes a message for everyone (author only) or hides it for wallet
func (s *service) DeleteMessage(ctx context.Context, messageID, wallet string, mode core.DeleteMode) error {
	ctx, span := tracer.Start(ctx, "Channel.Service.DeleteMessage")
	defer span.End()

	if !mode.IsValid() {
		return core.NewErrorInvalidArgument("mode must be for_everyone or for_me")
	}
	if !core.IsUUID(messageID) {
		return core.NewErrorInvalidArgument("invalid message id")
	}
	wallet, err := core.NormalizeWallet(wallet)
	if err != nil {
		return err
	}

	var message core.Message
	switch mode {
	case core.DeleteModeForEveryone:
		message, err = s.message.DeleteForEveryone(ctx, messageID, wallet)
	case core.DeleteModeForMe:
		message, err = s.deleteForMe(ctx, messageID, wallet)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.publish(ctx, core.SignalUpdate, message)

	return nil
}

func (s *service) deleteForMe(ctx context.Context, messageID, wallet string) (core.Message, error) {
	message, err := s.message.Get(ctx, messageID)
	if err != nil {
		return core.Message{}, err
	}

	// authors may always hide their own messages
	if !core.SameWallet(message.Author, wallet) {
		event, err := s.event.Get(ctx, message.EventID)
		if err != nil {
			return core.Message{}, err
		}
		err = s.gate(ctx, event, wallet)
		if err != nil {
			return core.Message{}, err
		}
	}

	return s.message.DeleteForMe(ctx, messageID, wallet)
}

// ListMemberships returns the sidebar of wallet: organized and held events,
// newest activity first
func (s *service) ListMemberships(ctx context.Context, wallet string) ([]core.Membership, error) {
	ctx, span := tracer.Start(ctx, "Channel.Service.ListMemberships")
	defer span.End()

	wallet, err := core.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}

	organized, err := s.event.ListOrganized(ctx, wallet)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	held, err := s.event.ListHeld(ctx, wallet)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	memberships := make([]core.Membership, 0, len(organized)+len(held))
	seen := make(map[string]bool, len(organized)+len(held))
	for _, event := range organized {
		if seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		memberships = append(memberships, core.Membership{Event: event, Role: "organizer"})
	}
	for _, event := range held {
		if seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		memberships = append(memberships, core.Membership{Event: event, Role: "holder"})
	}

	if len(memberships) == 0 {
		return memberships, nil
	}

	eventIDs := make([]string, len(memberships))
	for i, membership := range memberships {
		eventIDs[i] = membership.Event.ID
	}

	activities, err := s.event.GetActivities(ctx, eventIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var lastIDs []string
	for _, activity := range activities {
		lastIDs = append(lastIDs, activity.LastMessageID)
	}

	lastMessages, err := s.message.GetMany(ctx, lastIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for i := range memberships {
		memberships[i].LastActive = memberships[i].Event.StartsAt

		activity, ok := activities[memberships[i].Event.ID]
		if !ok {
			continue
		}
		memberships[i].LastActive = activity.LastMessageAt

		last, ok := lastMessages[activity.LastMessageID]
		if !ok || last.IsDeletedFor(wallet) {
			continue
		}
		memberships[i].LastMessage = last.Preview()
	}

	slices.SortStableFunc(memberships, func(a, b core.Membership) int {
		if c := b.LastActive.Compare(a.LastActive); c != 0 {
			return c
		}
		return strings.Compare(a.Event.ID, b.Event.ID)
	})

	return memberships, nil
}

func (s *service) lookupEvent(ctx context.Context, eventID string) (core.Event, error) {
	event, err := s.event.Get(ctx, eventID)
	if err != nil {
		return core.Event{}, err
	}
	if !event.HasContract() {
		return core.Event{}, core.NewErrorNotFound("event contract")
	}
	return event, nil
}

// gate collapses the access verdict: anything but Allowed is a denial
func (s *service) gate(ctx context.Context, event core.Event, wallet string) error {
	verdict, err := s.access.Check(ctx, event, wallet)
	if verdict == core.AccessAllowed {
		return nil
	}
	if verdict == core.AccessUnknown && err != nil {
		slog.WarnContext(
			ctx, "membership unknown, denying",
			slog.String("error", err.Error()),
			slog.String("event", event.ID),
			slog.String("wallet", wallet),
			slog.String("module", "channel"),
		)
	}
	return core.NewErrorNotMember()
}

func (s *service) publish(ctx context.Context, typ core.SignalType, message core.Message) {
	err := s.realtime.Publish(ctx, core.Signal{
		Type:    typ,
		EventID: message.EventID,
		Message: &message,
	})
	if err != nil {
		slog.WarnContext(
			ctx, "failed to publish signal",
			slog.String("error", err.Error()),
			slog.String("type", string(typ)),
			slog.String("module", "channel"),
		)
	}
}
