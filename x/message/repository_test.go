package message

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
	First  = "aaaaaaaa-0000-4000-8000-000000000001"
	Second = "aaaaaaaa-0000-4000-8000-000000000002"
	Third  = "aaaaaaaa-0000-4000-8000-000000000003"
	Stray  = "aaaaaaaa-0000-4000-8000-000000000004"
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
	pivot := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

	latest, err := repo.LatestCreatedAt(ctx, EventA)
	assert.NoError(t, err)
	assert.True(t, latest.IsZero())

	for i, id := range []string{First, Second, Third} {
		_, err := repo.Create(ctx, core.Message{
			ID:        id,
			EventID:   EventA,
			Author:    Alice,
			Content:   "message",
			CreatedAt: pivot.Add(time.Duration(i) * time.Microsecond),
		})
		assert.NoError(t, err)
	}
	replyTo := First
	_, err = repo.Create(ctx, core.Message{ID: Stray, EventID: EventB, Author: Bob, Content: "elsewhere", CreatedAt: pivot, ReplyTo: &replyTo})
	assert.NoError(t, err)

	latest, err = repo.LatestCreatedAt(ctx, EventA)
	if assert.NoError(t, err) {
		assert.True(t, latest.Equal(pivot.Add(2*time.Microsecond)))
	}

	// hiding twice is a no-op
	assert.NoError(t, repo.AddDeletion(ctx, Second, Bob))
	assert.NoError(t, repo.AddDeletion(ctx, Second, Bob))

	messages, err := repo.List(ctx, EventA, Bob, nil, 10)
	if assert.NoError(t, err) && assert.Len(t, messages, 2) {
		assert.Equal(t, Third, messages[0].ID)
		assert.Equal(t, First, messages[1].ID)
		assert.Empty(t, messages[0].DeletedFor)
	}

	messages, err = repo.List(ctx, EventA, Alice, nil, 10)
	if assert.NoError(t, err) && assert.Len(t, messages, 3) {
		assert.Equal(t, Second, messages[1].ID)
		assert.Equal(t, []string{Bob}, messages[1].DeletedFor)
	}

	cursor := pivot.Add(2 * time.Microsecond)
	messages, err = repo.List(ctx, EventA, Alice, &cursor, 1)
	if assert.NoError(t, err) && assert.Len(t, messages, 1) {
		assert.Equal(t, Second, messages[0].ID)
	}

	editedAt := pivot.Add(time.Minute)
	updated, err := repo.UpdateContent(ctx, First, "edited", editedAt)
	assert.NoError(t, err)
	assert.True(t, updated)

	deleted, err := repo.MarkDeleted(ctx, First, editedAt.Add(time.Minute))
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.MarkDeleted(ctx, First, editedAt.Add(2*time.Minute))
	assert.NoError(t, err)
	assert.False(t, deleted)

	updated, err = repo.UpdateContent(ctx, First, "too late", editedAt.Add(3*time.Minute))
	assert.NoError(t, err)
	assert.False(t, updated)

	message, err := repo.Get(ctx, First)
	if assert.NoError(t, err) {
		assert.Equal(t, "", message.Content)
		assert.True(t, message.IsDeleted())
		if assert.NotNil(t, message.EditedAt) {
			assert.True(t, message.EditedAt.Equal(editedAt))
		}
	}

	_, err = repo.Get(ctx, Unknown)
	assert.ErrorAs(t, err, &core.ErrorNotFound{})

	stray, err := repo.Get(ctx, Stray)
	if assert.NoError(t, err) && assert.NotNil(t, stray.ReplyTo) {
		assert.Equal(t, First, *stray.ReplyTo)
		assert.Equal(t, Bob, stray.Author)
	}

	many, err := repo.GetMany(ctx, []string{First, Third, Unknown})
	assert.NoError(t, err)
	assert.Len(t, many, 2)

	count, err := repo.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
