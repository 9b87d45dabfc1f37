// Package message stores chat messages and enforces their lifecycle
package message

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("message")

type service struct {
	repo    Repository
	profile core.ProfileService
	clock   *channelClock
	config  core.Config
}

// NewService creates a new message service
func NewService(repo Repository, profile core.ProfileService, config core.Config) core.MessageService {
	return newService(repo, profile, config, time.Now)
}

func newService(repo Repository, profile core.ProfileService, config core.Config, now func() time.Time) *service {
	config.Normalize()
	return &service{
		repo:    repo,
		profile: profile,
		clock:   newChannelClock(now),
		config:  config,
	}
}

// Send stores a new message authored by author.
// content must already be sanitized. replyTo must name a message of the same event.
func (s *service) Send(ctx context.Context, event core.Event, author, content string, replyTo *string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.Send")
	defer span.End()

	span.SetAttributes(attribute.String("event", event.ID))

	if content == "" {
		return core.Message{}, core.NewErrorInvalidArgument("content is empty")
	}

	if replyTo != nil {
		target, err := s.repo.Get(ctx, *replyTo)
		if err != nil {
			if _, ok := err.(core.ErrorNotFound); ok {
				return core.Message{}, core.NewErrorInvalidArgument("reply target does not exist")
			}
			span.RecordError(err)
			return core.Message{}, err
		}
		if target.EventID != event.ID {
			return core.Message{}, core.NewErrorInvalidArgument("reply target belongs to another event")
		}
	}

	if !s.clock.Known(event.ID) {
		latest, err := s.repo.LatestCreatedAt(ctx, event.ID)
		if err != nil {
			span.RecordError(err)
			return core.Message{}, err
		}
		s.clock.Observe(event.ID, latest)
	}

	message := core.Message{
		ID:        uuid.New().String(),
		EventID:   event.ID,
		Author:    strings.ToLower(author),
		Content:   content,
		CreatedAt: s.clock.Next(event.ID),
		ReplyTo:   replyTo,
	}

	created, err := s.repo.Create(ctx, message)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return s.hydrateOne(ctx, created)
}

// Get returns a message with its author profile and reply target
func (s *service) Get(ctx context.Context, id string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.Get")
	defer span.End()

	message, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return s.hydrateOne(ctx, message)
}

// GetMany returns the messages found among ids keyed by id
func (s *service) GetMany(ctx context.Context, ids []string) (map[string]core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.GetMany")
	defer span.End()

	messages, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	messages, err = s.hydrate(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make(map[string]core.Message, len(messages))
	for _, message := range messages {
		result[message.ID] = message
	}
	return result, nil
}

// Edit replaces the content of a live message. Only the author may edit.
func (s *service) Edit(ctx context.Context, id, requester, content string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.Edit")
	defer span.End()

	if content == "" {
		return core.Message{}, core.NewErrorInvalidArgument("content is empty")
	}

	message, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	if !core.SameWallet(message.Author, requester) {
		return core.Message{}, core.NewErrorPermissionDenied("only the author can edit this message")
	}

	if message.IsDeleted() {
		return core.Message{}, core.NewErrorAlreadyDeleted()
	}

	updated, err := s.repo.UpdateContent(ctx, id, content, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}
	if !updated {
		// deleted between the read and the write
		return core.Message{}, core.NewErrorAlreadyDeleted()
	}

	return s.Get(ctx, id)
}

// DeleteForEveryone clears the content of a message for all viewers.
// Deleting an already deleted message is a no-op.
func (s *service) DeleteForEveryone(ctx context.Context, id, requester string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.DeleteForEveryone")
	defer span.End()

	message, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	if !core.SameWallet(message.Author, requester) {
		return core.Message{}, core.NewErrorPermissionDenied("only the author can delete this message for everyone")
	}

	if message.IsDeleted() {
		return s.hydrateOne(ctx, message)
	}

	_, err = s.repo.MarkDeleted(ctx, id, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return s.Get(ctx, id)
}

// DeleteForMe hides a message from requester only
func (s *service) DeleteForMe(ctx context.Context, id, requester string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.DeleteForMe")
	defer span.End()

	message, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	requester = strings.ToLower(requester)
	if message.IsDeletedFor(requester) {
		return s.hydrateOne(ctx, message)
	}

	err = s.repo.AddDeletion(ctx, id, requester)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return s.Get(ctx, id)
}

// List returns one page of a channel in display order, oldest first
func (s *service) List(ctx context.Context, eventID, viewer string, before *time.Time) (core.MessagePage, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.List")
	defer span.End()

	messages, err := s.repo.List(ctx, eventID, strings.ToLower(viewer), before, s.config.PageSize)
	if err != nil {
		span.RecordError(err)
		return core.MessagePage{}, err
	}

	hasMore := len(messages) == s.config.PageSize
	slices.Reverse(messages)

	messages, err = s.hydrate(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return core.MessagePage{}, err
	}

	return core.MessagePage{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

func (s *service) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.Count")
	defer span.End()

	return s.repo.Count(ctx)
}

func (s *service) hydrateOne(ctx context.Context, message core.Message) (core.Message, error) {
	messages, err := s.hydrate(ctx, []core.Message{message})
	if err != nil {
		return core.Message{}, err
	}
	return messages[0], nil
}

// hydrate resolves reply targets and author profiles at read time
func (s *service) hydrate(ctx context.Context, messages []core.Message) ([]core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Service.hydrate")
	defer span.End()

	if len(messages) == 0 {
		return messages, nil
	}

	byID := make(map[string]core.Message, len(messages))
	for _, message := range messages {
		byID[message.ID] = message
	}

	var missing []string
	for _, message := range messages {
		if message.ReplyTo == nil {
			continue
		}
		if _, ok := byID[*message.ReplyTo]; ok {
			continue
		}
		if !slices.Contains(missing, *message.ReplyTo) {
			missing = append(missing, *message.ReplyTo)
		}
	}

	if len(missing) > 0 {
		targets, err := s.repo.GetMany(ctx, missing)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, target := range targets {
			byID[target.ID] = target
		}
	}

	var wallets []string
	for _, message := range byID {
		if !slices.Contains(wallets, message.Author) {
			wallets = append(wallets, message.Author)
		}
	}

	profiles, err := s.profile.GetMany(ctx, wallets)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(
			ctx, "failed to load profiles",
			slog.String("error", err.Error()),
			slog.String("module", "message"),
		)
		return nil, err
	}

	for i := range messages {
		if profile, ok := profiles[strings.ToLower(messages[i].Author)]; ok {
			messages[i].Profile = &profile
		}

		if messages[i].ReplyTo == nil {
			continue
		}
		target, ok := byID[*messages[i].ReplyTo]
		if !ok || target.EventID != messages[i].EventID {
			continue
		}
		if profile, ok := profiles[strings.ToLower(target.Author)]; ok {
			target.Profile = &profile
		}
		messages[i].Reply = target.Preview()
	}

	return messages, nil
}
