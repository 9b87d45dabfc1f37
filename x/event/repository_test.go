package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/internal/testutil"
)

const (
	Older = "aaaaaaaa-0000-4000-8000-000000000001"
	Newer = "aaaaaaaa-0000-4000-8000-000000000002"
	Late  = "aaaaaaaa-0000-4000-8000-000000000003"
)

func TestRepositorySQLite(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()

	testRepository(t, db)
}

func TestRepositoryPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	db, cleanup := testutil.CreatePostgres()
	defer cleanup()

	testRepository(t, db)
}

func testRepository(t *testing.T, db *gorm.DB) {
	repo := NewRepository(db)
	ctx := context.Background()
	pivot := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []core.Event{
		{ID: Concert, Name: "Concert", OrganizerAddress: Alice, ChainID: 137},
		{ID: Festival, Name: "Festival", OrganizerAddress: Bob, ChainID: 137},
	}
	for _, event := range events {
		assert.NoError(t, db.Create(&event).Error)
	}

	tickets := []core.Ticket{
		{EventID: Festival, TokenID: "1", OwnerAddress: Alice},
		{EventID: Festival, TokenID: "2", OwnerAddress: Alice},
		{EventID: Concert, TokenID: "3", OwnerAddress: Bob},
	}
	for _, ticket := range tickets {
		assert.NoError(t, db.Create(&ticket).Error)
	}

	event, err := repo.Get(ctx, Festival)
	if assert.NoError(t, err) {
		assert.Equal(t, "Festival", event.Name)
	}

	_, err = repo.Get(ctx, Meetup)
	assert.ErrorAs(t, err, &core.ErrorNotFound{})

	organized, err := repo.ListByOrganizer(ctx, "0x00000000000000000000000000000000000000AA")
	if assert.NoError(t, err) && assert.Len(t, organized, 1) {
		assert.Equal(t, Concert, organized[0].ID)
	}

	held, err := repo.ListByTicketOwner(ctx, Alice)
	if assert.NoError(t, err) && assert.Len(t, held, 1) {
		assert.Equal(t, Festival, held[0].ID)
	}

	assert.NoError(t, repo.UpsertActivity(ctx, core.ChannelActivity{EventID: Concert, LastMessageID: Older, LastMessageAt: pivot}))
	assert.NoError(t, repo.UpsertActivity(ctx, core.ChannelActivity{EventID: Concert, LastMessageID: Newer, LastMessageAt: pivot.Add(time.Second)}))
	// a late arrival does not move the pointer back
	assert.NoError(t, repo.UpsertActivity(ctx, core.ChannelActivity{EventID: Concert, LastMessageID: Late, LastMessageAt: pivot.Add(-time.Second)}))

	activities, err := repo.GetActivities(ctx, []string{Concert, Festival})
	if assert.NoError(t, err) && assert.Len(t, activities, 1) {
		assert.Equal(t, Newer, activities[0].LastMessageID)
		assert.True(t, activities[0].LastMessageAt.Equal(pivot.Add(time.Second)))
	}

	activities, err = repo.GetActivities(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, activities)
}
