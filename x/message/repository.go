//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mock/repository.go
package message

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tixgate/eventchat/core"
)

// Repository is the message persistence interface
type Repository interface {
	Create(ctx context.Context, message core.Message) (core.Message, error)
	Get(ctx context.Context, id string) (core.Message, error)
	GetMany(ctx context.Context, ids []string) ([]core.Message, error)
	List(ctx context.Context, eventID, viewer string, before *time.Time, limit int) ([]core.Message, error)
	LatestCreatedAt(ctx context.Context, eventID string) (time.Time, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (bool, error)
	MarkDeleted(ctx context.Context, id string, deletedAt time.Time) (bool, error)
	AddDeletion(ctx context.Context, id, wallet string) error
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new message repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

// Create inserts a new message
func (r *repository) Create(ctx context.Context, message core.Message) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.Create")
	defer span.End()

	err := r.db.WithContext(ctx).Create(&message).Error
	if err != nil {
		span.RecordError(err)
		return core.Message{}, errors.Wrap(err, "create message")
	}

	message.DeletedFor = []string{}
	return message, nil
}

// Get returns a message with its deleted_for set
func (r *repository) Get(ctx context.Context, id string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.Get")
	defer span.End()

	var message core.Message
	err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Message{}, core.NewErrorNotFound("message")
		}
		span.RecordError(err)
		return core.Message{}, errors.Wrap(err, "get message")
	}

	messages := []core.Message{message}
	err = r.loadDeletedFor(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return messages[0], nil
}

// GetMany returns the messages found among ids, in no particular order
func (r *repository) GetMany(ctx context.Context, ids []string) ([]core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return []core.Message{}, nil
	}

	var messages []core.Message
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get messages")
	}

	err = r.loadDeletedFor(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return messages, nil
}

// List returns up to limit messages of a channel, newest first,
// skipping the ones viewer deleted for themselves
func (r *repository) List(ctx context.Context, eventID, viewer string, before *time.Time, limit int) ([]core.Message, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.List")
	defer span.End()

	span.SetAttributes(attribute.String("event", eventID))

	query := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Where("NOT EXISTS (SELECT 1 FROM chat_message_deletions d WHERE d.message_id = chat_messages.id AND d.wallet = ?)", viewer)

	if before != nil {
		query = query.Where("created_at < ?", before.UTC())
	}

	var messages []core.Message
	err := query.Order("created_at desc").Limit(limit).Find(&messages).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list messages")
	}

	err = r.loadDeletedFor(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return messages, nil
}

// LatestCreatedAt returns the ordering key of the newest message in a channel,
// or the zero time for an empty channel
func (r *repository) LatestCreatedAt(ctx context.Context, eventID string) (time.Time, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.LatestCreatedAt")
	defer span.End()

	var message core.Message
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at desc").Take(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		span.RecordError(err)
		return time.Time{}, errors.Wrap(err, "latest message")
	}

	return message.CreatedAt, nil
}

// UpdateContent rewrites the content of a message that is not deleted.
// Reports false when no live message matched.
func (r *repository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.UpdateContent")
	defer span.End()

	result := r.db.WithContext(ctx).
		Model(&core.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"content":   content,
			"edited_at": editedAt.UTC(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, errors.Wrap(result.Error, "update message")
	}

	return result.RowsAffected > 0, nil
}

// MarkDeleted clears the content and sets deleted_at once.
// Reports false when the message was already deleted or missing.
func (r *repository) MarkDeleted(ctx context.Context, id string, deletedAt time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.MarkDeleted")
	defer span.End()

	result := r.db.WithContext(ctx).
		Model(&core.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"content":    "",
			"deleted_at": deletedAt.UTC(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, errors.Wrap(result.Error, "delete message")
	}

	return result.RowsAffected > 0, nil
}

// AddDeletion puts wallet into the deleted_for set of a message
func (r *repository) AddDeletion(ctx context.Context, id, wallet string) error {
	ctx, span := tracer.Start(ctx, "Message.Repository.AddDeletion")
	defer span.End()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&core.MessageDeletion{
			MessageID: id,
			Wallet:    wallet,
		}).Error
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "add deletion")
	}

	return nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Message.Repository.Count")
	defer span.End()

	var count int64
	err := r.db.WithContext(ctx).Model(&core.Message{}).Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

func (r *repository) loadDeletedFor(ctx context.Context, messages []core.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, len(messages))
	for i, message := range messages {
		ids[i] = message.ID
	}

	var deletions []core.MessageDeletion
	err := r.db.WithContext(ctx).
		Select("message_id", "wallet").
		Where("message_id IN ?", ids).
		Order("created_at asc").
		Find(&deletions).Error
	if err != nil {
		return errors.Wrap(err, "load deletions")
	}

	byMessage := make(map[string][]string, len(deletions))
	for _, deletion := range deletions {
		byMessage[deletion.MessageID] = append(byMessage[deletion.MessageID], deletion.Wallet)
	}

	for i := range messages {
		wallets, ok := byMessage[messages[i].ID]
		if !ok {
			wallets = []string{}
		}
		messages[i].DeletedFor = wallets
	}

	return nil
}
