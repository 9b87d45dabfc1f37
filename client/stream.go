package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tixgate/eventchat/core"
)

// Stream is a websocket subscription to one event channel
type Stream struct {
	conn    *websocket.Conn
	signals chan core.Signal
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

// Dial opens the realtime socket of eventID on the gateway served at endpoint
func Dial(ctx context.Context, endpoint, eventID, wallet string) (*Stream, error) {
	ctx, span := tracer.Start(ctx, "Client.Dial")
	defer span.End()

	target := strings.TrimSuffix(endpoint, "/")
	target = strings.Replace(target, "http", "ws", 1)
	target += "/chat/" + url.PathEscape(eventID) + "/socket?wallet=" + url.QueryEscape(wallet)

	header := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s := &Stream{
		conn:    conn,
		signals: make(chan core.Signal, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

func (s *Stream) readLoop() {
	defer close(s.stopped)
	defer close(s.signals)
	for {
		var signal core.Signal
		err := s.conn.ReadJSON(&signal)
		if err != nil {
			return
		}
		select {
		case s.signals <- signal:
		case <-s.done:
			return
		}
	}
}

// Signals yields received signals until the socket closes
func (s *Stream) Signals() <-chan core.Signal {
	return s.signals
}

// Typing broadcasts that the user is typing, shown to others as label
func (s *Stream) Typing(label string) error {
	return s.write(core.SocketRequest{Type: core.SignalTyping, Label: label})
}

// RequestPresence asks for the current online list
func (s *Stream) RequestPresence() error {
	return s.write(core.SocketRequest{Type: core.SignalPresence})
}

func (s *Stream) write(request core.SocketRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(request)
}

// Close closes the socket. Undelivered signals are dropped.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
