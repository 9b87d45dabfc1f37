package event

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tixgate/eventchat/core"
)

// Repository reads events and ticket ownership, and keeps the channel activity index
type Repository interface {
	Get(ctx context.Context, id string) (core.Event, error)
	ListByOrganizer(ctx context.Context, wallet string) ([]core.Event, error)
	ListByTicketOwner(ctx context.Context, wallet string) ([]core.Event, error)
	UpsertActivity(ctx context.Context, activity core.ChannelActivity) error
	GetActivities(ctx context.Context, eventIDs []string) ([]core.ChannelActivity, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new event repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Get(ctx context.Context, id string) (core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Repository.Get")
	defer span.End()

	var event core.Event
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Event{}, core.NewErrorNotFound("event")
		}
		span.RecordError(err)
		return core.Event{}, errors.Wrap(err, "get event")
	}

	return event, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, wallet string) ([]core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Repository.ListByOrganizer")
	defer span.End()

	var events []core.Event
	err := r.db.WithContext(ctx).
		Where("LOWER(organizer_address) = ?", strings.ToLower(wallet)).
		Find(&events).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list organized events")
	}

	return events, nil
}

func (r *repository) ListByTicketOwner(ctx context.Context, wallet string) ([]core.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Repository.ListByTicketOwner")
	defer span.End()

	owned := r.db.Model(&core.Ticket{}).
		Select("event_id").
		Where("LOWER(owner_address) = ?", strings.ToLower(wallet))

	var events []core.Event
	err := r.db.WithContext(ctx).Where("id IN (?)", owned).Find(&events).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list held events")
	}

	return events, nil
}

// UpsertActivity moves the last message pointer of a channel forward.
// An older activity never replaces a newer one.
func (r *repository) UpsertActivity(ctx context.Context, activity core.ChannelActivity) error {
	ctx, span := tracer.Start(ctx, "Event.Repository.UpsertActivity")
	defer span.End()

	activity.LastMessageAt = activity.LastMessageAt.UTC()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_message_id", "last_message_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "chat_channel_activities.last_message_at < excluded.last_message_at"},
			}},
		}).
		Create(&activity).Error
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "upsert activity")
	}

	return nil
}

func (r *repository) GetActivities(ctx context.Context, eventIDs []string) ([]core.ChannelActivity, error) {
	ctx, span := tracer.Start(ctx, "Event.Repository.GetActivities")
	defer span.End()

	if len(eventIDs) == 0 {
		return []core.ChannelActivity{}, nil
	}

	var activities []core.ChannelActivity
	err := r.db.WithContext(ctx).Where("event_id IN ?", eventIDs).Find(&activities).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get activities")
	}

	return activities, nil
}

