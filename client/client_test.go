package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/core/mock"
	"github.com/tixgate/eventchat/x/channel"
)

const MessageA = "c4d5e6f7-0a1b-4c2d-8e3f-405162738495"

func newServer(t *testing.T) (*mock_core.MockChannelService, Client) {
	ctrl := gomock.NewController(t)
	service := mock_core.NewMockChannelService(ctrl)
	handler := channel.NewHandler(service)

	e := echo.New()
	e.GET("/chat/memberships", handler.Memberships)
	e.GET("/chat/:event/messages", handler.List)
	e.POST("/chat/:event/messages", handler.Send)
	e.PATCH("/chat/messages/:id", handler.Edit)
	e.DELETE("/chat/messages/:id", handler.Delete)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return service, NewClient(server.URL)
}

func TestClientRoundTrip(t *testing.T) {
	service, c := newServer(t)
	ctx := context.Background()

	before := base.Add(123456 * time.Microsecond)
	sent := message(MessageA, Me, "hello", 1)
	replyTo := "2b9e4f10-3c5d-4e6f-8a7b-9c0d1e2f3a4b"

	service.EXPECT().ListMessages(gomock.Any(), EventA, Me, gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, cursor *time.Time) (core.MessagePage, error) {
			assert.True(t, before.Equal(*cursor))
			return core.MessagePage{Messages: []core.Message{sent}, HasMore: true}, nil
		},
	)
	service.EXPECT().SendMessage(gomock.Any(), EventA, Me, "hello", &replyTo).Return(sent, nil)
	service.EXPECT().EditMessage(gomock.Any(), MessageA, Me, "edited").Return(sent, nil)
	service.EXPECT().DeleteMessage(gomock.Any(), MessageA, Me, core.DeleteModeForEveryone).Return(nil)
	service.EXPECT().ListMemberships(gomock.Any(), Me).Return([]core.Membership{{Role: "holder"}}, nil)

	page, err := c.ListMessages(ctx, EventA, Me, &before)
	if assert.NoError(t, err) {
		assert.True(t, page.HasMore)
		assert.Equal(t, MessageA, page.Messages[0].ID)
	}

	message, err := c.SendMessage(ctx, EventA, Me, "hello", &replyTo)
	if assert.NoError(t, err) {
		assert.Equal(t, "hello", message.Content)
	}

	_, err = c.EditMessage(ctx, MessageA, Me, "edited")
	assert.NoError(t, err)

	err = c.DeleteMessage(ctx, MessageA, Me, core.DeleteModeForEveryone)
	assert.NoError(t, err)

	memberships, err := c.ListMemberships(ctx, Me)
	if assert.NoError(t, err) && assert.Len(t, memberships, 1) {
		assert.Equal(t, "holder", memberships[0].Role)
	}
}

func TestClientErrors(t *testing.T) {
	service, c := newServer(t)
	ctx := context.Background()

	service.EXPECT().SendMessage(gomock.Any(), EventA, Me, "spam", nil).Return(core.Message{}, core.NewErrorRateLimited(10*time.Second))
	service.EXPECT().ListMessages(gomock.Any(), EventA, Me, nil).Return(core.MessagePage{}, core.NewErrorNotMember())

	_, err := c.SendMessage(ctx, EventA, Me, "spam", nil)
	var apiErr *Error
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, 10*time.Second, apiErr.RetryAfter)
	}

	_, err = c.ListMessages(ctx, EventA, Me, nil)
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, core.NewErrorNotMember().Error(), apiErr.Message)
	}
}

func TestStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan core.SocketRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/"+EventA+"/socket", r.URL.Path)
		assert.Equal(t, Me, r.URL.Query().Get("wallet"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(core.Signal{Type: core.SignalPresence, EventID: EventA, Online: []string{Me}})

		var request core.SocketRequest
		if conn.ReadJSON(&request) == nil {
			received <- request
		}
	}))
	defer server.Close()

	stream, err := Dial(context.Background(), server.URL, EventA, Me)
	if !assert.NoError(t, err) {
		return
	}
	defer stream.Close()

	select {
	case signal := <-stream.Signals():
		assert.Equal(t, core.SignalPresence, signal.Type)
		assert.Equal(t, []string{Me}, signal.Online)
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}

	assert.NoError(t, stream.Typing("alice"))
	select {
	case request := <-received:
		assert.Equal(t, core.SignalTyping, request.Type)
		assert.Equal(t, "alice", request.Label)
	case <-time.After(time.Second):
		t.Fatal("typing frame not received")
	}
}

func TestStreamCloseWithoutReader(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sent := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 100; i++ {
			_ = conn.WriteJSON(core.Signal{Type: core.SignalTyping, EventID: EventA, Wallet: Peer, Label: "bob"})
		}
		close(sent)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, err := Dial(context.Background(), server.URL, EventA, Me)
	if !assert.NoError(t, err) {
		return
	}

	<-sent
	assert.Eventually(t, func() bool { return len(stream.signals) == cap(stream.signals) }, time.Second, 5*time.Millisecond)

	assert.NoError(t, stream.Close())

	select {
	case <-stream.stopped:
	case <-time.After(time.Second):
		t.Fatal("reader still running after close")
	}
}
