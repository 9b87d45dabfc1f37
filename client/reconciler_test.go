package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/tixgate/eventchat/client/mock"
	"github.com/tixgate/eventchat/core"
)

const (
	EventA = "7f1c6d2e-8a4b-4c3d-9e2f-0a1b2c3d4e5f"
	EventB = "2b9e4f10-3c5d-4e6f-8a7b-9c0d1e2f3a4b"
	Me     = "0x00000000000000000000000000000000000000aa"
	Peer   = "0x00000000000000000000000000000000000000bb"
)

var base = time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)

func message(id, author, content string, offset int) core.Message {
	return core.Message{
		ID:        id,
		EventID:   EventA,
		Author:    author,
		Content:   content,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
	}
}

func ids(entries []Entry) []string {
	result := make([]string, len(entries))
	for i, entry := range entries {
		result[i] = entry.ID
	}
	return result
}

func TestOptimisticSendIsReplacedInPlace(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_client.NewMockClient(ctrl)
	r := NewReconciler(api, EventA, Me, 0)

	release := make(chan struct{})
	confirmed := message("m2", Me, "hello", 2)

	api.EXPECT().ListMessages(gomock.Any(), EventA, Me, nil).Return(core.MessagePage{Messages: []core.Message{message("m1", Peer, "first", 1)}}, nil)
	api.EXPECT().SendMessage(gomock.Any(), EventA, Me, "hello", nil).DoAndReturn(
		func(context.Context, string, string, string, *string) (core.Message, error) {
			<-release
			return confirmed, nil
		},
	)

	assert.NoError(t, r.Load(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Send(context.Background(), "hello", nil)
		assert.NoError(t, err)
	}()

	assert.Eventually(t, func() bool { return len(r.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	entries := r.Messages()
	assert.True(t, entries[1].Pending)
	assert.Equal(t, "hello", entries[1].Content)

	// the insert of our own message is ignored, the optimistic entry covers it
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &confirmed})

	close(release)
	<-done

	entries = r.Messages()
	assert.Equal(t, []string{"m1", "m2"}, ids(entries))
	assert.False(t, entries[1].Pending)
}

func TestFailedSendIsRemoved(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_client.NewMockClient(ctrl)
	r := NewReconciler(api, EventA, Me, 0)

	api.EXPECT().SendMessage(gomock.Any(), EventA, Me, "spam", nil).Return(core.Message{}, &Error{StatusCode: 429, Message: "Too Many Requests", RetryAfter: 30 * time.Second})

	_, err := r.Send(context.Background(), "spam", nil)
	var apiErr *Error
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, 429, apiErr.StatusCode)
		assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
	}
	assert.Empty(t, r.Messages())
}

func TestInsertIsDeduplicated(t *testing.T) {
	r := NewReconciler(nil, EventA, Me, 0)
	m1 := message("m1", Peer, "gm", 1)
	other := message("x1", Peer, "elsewhere", 1)
	other.EventID = EventB

	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &m1})
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &m1})
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventB, Message: &other})

	assert.Equal(t, []string{"m1"}, ids(r.Messages()))
}

func TestUpdateAppliesEditsAndDeletes(t *testing.T) {
	r := NewReconciler(nil, EventA, Me, 0)
	parent := message("m1", Peer, "original", 1)
	reply := message("m2", Peer, "replying", 2)
	reply.ReplyTo = &parent.ID
	reply.Reply = parent.Preview()

	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &parent})
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &reply})

	editedAt := base.Add(time.Minute)
	edited := parent
	edited.Content = "edited"
	edited.EditedAt = &editedAt
	r.Apply(core.Signal{Type: core.SignalUpdate, EventID: EventA, Message: &edited})

	entries := r.Messages()
	assert.Equal(t, "edited", entries[0].Content)
	assert.Equal(t, &editedAt, entries[0].EditedAt)
	assert.Equal(t, "edited", entries[1].Reply.Content)

	deletedAt := base.Add(2 * time.Minute)
	deleted := edited
	deleted.Content = ""
	deleted.DeletedAt = &deletedAt
	r.Apply(core.Signal{Type: core.SignalUpdate, EventID: EventA, Message: &deleted})

	entries = r.Messages()
	assert.Equal(t, core.DeletedPlaceholder, entries[0].Content)
	assert.Equal(t, core.DeletedPlaceholder, entries[1].Reply.Content)
}

func TestUpdateHidesMessagesDeletedForMe(t *testing.T) {
	r := NewReconciler(nil, EventA, Me, 0)
	m1 := message("m1", Peer, "gm", 1)
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &m1})

	hiddenByOther := m1
	hiddenByOther.DeletedFor = []string{"0x00000000000000000000000000000000000000cc"}
	r.Apply(core.Signal{Type: core.SignalUpdate, EventID: EventA, Message: &hiddenByOther})
	assert.Len(t, r.Messages(), 1)

	hiddenByMe := m1
	hiddenByMe.DeletedFor = []string{"0x00000000000000000000000000000000000000cc", Me}
	r.Apply(core.Signal{Type: core.SignalUpdate, EventID: EventA, Message: &hiddenByMe})
	assert.Empty(t, r.Messages())
}

func TestEditAndDeleteAfterConfirmation(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_client.NewMockClient(ctrl)
	r := NewReconciler(api, EventA, Me, 0)

	mine := message("m1", Me, "tpyo", 1)
	theirs := message("m2", Peer, "noise", 2)
	api.EXPECT().ListMessages(gomock.Any(), EventA, Me, nil).Return(core.MessagePage{Messages: []core.Message{mine, theirs}}, nil)
	assert.NoError(t, r.Load(context.Background()))

	api.EXPECT().EditMessage(gomock.Any(), "m1", Me, "typo").Return(core.Message{}, errors.New("offline"))
	assert.Error(t, r.Edit(context.Background(), "m1", "typo"))
	assert.Equal(t, "tpyo", r.Messages()[0].Content)

	fixed := mine
	fixed.Content = "typo"
	api.EXPECT().EditMessage(gomock.Any(), "m1", Me, "typo").Return(fixed, nil)
	assert.NoError(t, r.Edit(context.Background(), "m1", "typo"))
	assert.Equal(t, "typo", r.Messages()[0].Content)

	api.EXPECT().DeleteMessage(gomock.Any(), "m2", Me, core.DeleteModeForMe).Return(nil)
	assert.NoError(t, r.Delete(context.Background(), "m2", core.DeleteModeForMe))
	assert.Equal(t, []string{"m1"}, ids(r.Messages()))

	api.EXPECT().DeleteMessage(gomock.Any(), "m1", Me, core.DeleteModeForEveryone).Return(nil)
	assert.NoError(t, r.Delete(context.Background(), "m1", core.DeleteModeForEveryone))
	entries := r.Messages()
	assert.True(t, entries[0].IsDeleted())
	assert.Equal(t, core.DeletedPlaceholder, entries[0].Content)
}

func TestLoadOlder(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mock_client.NewMockClient(ctrl)
	r := NewReconciler(api, EventA, Me, 0)

	newest := message("m3", Peer, "c", 3)
	cursor := newest.CreatedAt
	api.EXPECT().ListMessages(gomock.Any(), EventA, Me, nil).Return(core.MessagePage{Messages: []core.Message{newest}, HasMore: true}, nil)
	api.EXPECT().ListMessages(gomock.Any(), EventA, Me, &cursor).Return(core.MessagePage{Messages: []core.Message{message("m1", Peer, "a", 1), message("m2", Peer, "b", 2)}}, nil)

	assert.NoError(t, r.Load(context.Background()))
	hasMore, err := r.LoadOlder(context.Background())
	assert.NoError(t, err)
	assert.False(t, hasMore)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(r.Messages()))

	hasMore, err = r.LoadOlder(context.Background())
	assert.NoError(t, err)
	assert.False(t, hasMore)
}

func TestTypingExpires(t *testing.T) {
	now := base
	r := NewReconciler(nil, EventA, Me, 3*time.Second)
	r.now = func() time.Time { return now }

	r.Apply(core.Signal{Type: core.SignalTyping, EventID: EventA, Wallet: Peer, Label: "bob"})
	r.Apply(core.Signal{Type: core.SignalTyping, EventID: EventA, Wallet: Me, Label: "me"})
	assert.Equal(t, []string{"bob"}, r.Typing())

	now = now.Add(2 * time.Second)
	assert.Equal(t, []string{"bob"}, r.Typing())

	now = now.Add(time.Second)
	assert.Empty(t, r.Typing())

	// a message from the typist clears the indicator
	r.Apply(core.Signal{Type: core.SignalTyping, EventID: EventA, Wallet: Peer, Label: "bob"})
	m1 := message("m1", Peer, "done typing", 4)
	r.Apply(core.Signal{Type: core.SignalInsert, EventID: EventA, Message: &m1})
	assert.Empty(t, r.Typing())
}

func TestPresenceAndRun(t *testing.T) {
	r := NewReconciler(nil, EventA, Me, 0)

	signals := make(chan core.Signal, 2)
	signals <- core.Signal{Type: core.SignalPresence, EventID: EventA, Online: []string{Me, Peer}}
	signals <- core.Signal{Type: core.SignalPresence, EventID: EventA, Online: []string{Me}}
	close(signals)

	r.Run(context.Background(), signals)

	assert.Equal(t, []string{Me}, r.Online())
	assert.Equal(t, 1, r.OnlineCount())
}
