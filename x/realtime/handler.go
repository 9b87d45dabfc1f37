package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/x/filter"
)

var (
	pingInterval      = 10 * time.Second
	disconnectTimeout = 30 * time.Second
	writeTimeout      = 10 * time.Second
	leaveTimeout      = 5 * time.Second
)

const (
	maxFrameSize   = 4096
	maxLabelLength = 64
	typingBurst    = 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler is the websocket endpoint of event channels
type Handler interface {
	Connect(c echo.Context) error
	GetMetrics() map[string]int64
}

type handler struct {
	service core.RealtimeService
	channel core.ChannelService
	config  core.Config

	connections   int64
	accepted      int64
	typingDropped int64
}

// NewHandler creates a new websocket handler
func NewHandler(service core.RealtimeService, channel core.ChannelService, config core.Config) Handler {
	config.Normalize()
	return &handler{
		service: service,
		channel: channel,
		config:  config,
	}
}

type session struct {
	id      string
	event   core.Event
	wallet  string
	conn    *websocket.Conn
	signals chan core.Signal
	typing  *rate.Limiter

	lastPong atomic.Int64
}

// Connect upgrades a member's request to a websocket streaming the event channel
func (h *handler) Connect(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Realtime.Handler.Connect")

	eventID := c.Param("event")
	if !core.IsUUID(eventID) {
		span.End()
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid event id"})
	}

	wallet, err := core.NormalizeWallet(c.QueryParam("wallet"))
	if err != nil {
		span.End()
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": err.Error()})
	}

	event, err := h.channel.Authorize(ctx, eventID, wallet)
	if err != nil {
		span.RecordError(err)
		span.End()
		return c.JSON(core.StatusCode(err), echo.Map{"status": "error", "error": core.PublicMessage(err)})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		slog.WarnContext(
			ctx, "failed to upgrade websocket",
			slog.String("error", err.Error()),
			slog.String("module", "realtime"),
		)
		return nil
	}
	span.End()

	s := &session{
		id:      xid.New().String(),
		event:   event,
		wallet:  wallet,
		conn:    conn,
		signals: make(chan core.Signal, 64),
		typing:  rate.NewLimiter(rate.Every(time.Second), typingBurst),
	}
	s.lastPong.Store(time.Now().UnixNano())

	atomic.AddInt64(&h.connections, 1)
	atomic.AddInt64(&h.accepted, 1)
	defer atomic.AddInt64(&h.connections, -1)

	// the request context ends with the handler, the session outlives it
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()

	online, err := h.service.Join(ctx, event.ID, wallet)
	if err != nil {
		slog.WarnContext(
			ctx, "failed to register presence",
			slog.String("error", err.Error()),
			slog.String("session", s.id),
			slog.String("module", "realtime"),
		)
	} else {
		s.signals <- core.Signal{Type: core.SignalPresence, EventID: event.ID, Online: online}
		h.publish(ctx, core.Signal{Type: core.SignalPresence, EventID: event.ID, Online: online})
	}
	defer h.leave(ctx, s)

	go func() {
		err := h.service.Subscribe(ctx, []string{event.ID}, s.signals)
		if err != nil {
			slog.ErrorContext(
				ctx, "subscription failed",
				slog.String("error", err.Error()),
				slog.String("session", s.id),
				slog.String("module", "realtime"),
			)
			cancel()
		}
	}()

	go h.writeLoop(ctx, cancel, s)
	h.readLoop(ctx, s)

	return nil
}

func (h *handler) readLoop(ctx context.Context, s *session) {
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetPongHandler(func(string) error {
		s.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	for {
		var request core.SocketRequest
		err := s.conn.ReadJSON(&request)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(
					ctx, "socket closed",
					slog.String("error", err.Error()),
					slog.String("session", s.id),
					slog.String("module", "realtime"),
				)
			}
			return
		}

		switch request.Type {
		case core.SignalTyping:
			if !s.typing.Allow() {
				atomic.AddInt64(&h.typingDropped, 1)
				continue
			}
			h.publish(ctx, core.Signal{
				Type:    core.SignalTyping,
				EventID: s.event.ID,
				Wallet:  s.wallet,
				Label:   typingLabel(request.Label, s.wallet),
			})
		case core.SignalPresence:
			online, err := h.service.Online(ctx, s.event.ID)
			if err != nil {
				continue
			}
			select {
			case s.signals <- core.Signal{Type: core.SignalPresence, EventID: s.event.ID, Online: online}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *handler) writeLoop(ctx context.Context, cancel context.CancelFunc, s *session) {
	pingTicker := time.NewTicker(pingInterval)
	recheckTicker := time.NewTicker(h.config.AccessCacheTTL)
	defer func() {
		pingTicker.Stop()
		recheckTicker.Stop()
		cancel()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeTimeout),
			)
			return
		case signal := <-s.signals:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(signal); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if time.Since(time.Unix(0, s.lastPong.Load())) > disconnectTimeout {
				slog.InfoContext(
					ctx, "pong timeout",
					slog.String("session", s.id),
					slog.String("module", "realtime"),
				)
				return
			}
		case <-recheckTicker.C:
			// membership may have been sold since the socket opened
			_, err := h.channel.Authorize(ctx, s.event.ID, s.wallet)
			if err != nil {
				s.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, core.PublicMessage(err)),
					time.Now().Add(writeTimeout),
				)
				return
			}
		}
	}
}

func (h *handler) leave(ctx context.Context, s *session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancel()

	online, err := h.service.Leave(ctx, s.event.ID, s.wallet)
	if err != nil {
		slog.WarnContext(
			ctx, "failed to unregister presence",
			slog.String("error", err.Error()),
			slog.String("session", s.id),
			slog.String("module", "realtime"),
		)
		return
	}
	h.publish(ctx, core.Signal{Type: core.SignalPresence, EventID: s.event.ID, Online: online})
}

func (h *handler) publish(ctx context.Context, signal core.Signal) {
	err := h.service.Publish(ctx, signal)
	if err != nil {
		slog.WarnContext(
			ctx, "failed to publish signal",
			slog.String("error", err.Error()),
			slog.String("type", string(signal.Type)),
			slog.String("module", "realtime"),
		)
	}
}

func typingLabel(raw, wallet string) string {
	label, err := filter.Sanitize(raw)
	if err != nil {
		return wallet
	}
	runes := []rune(label)
	if len(runes) > maxLabelLength {
		return string(runes[:maxLabelLength])
	}
	return label
}

func (h *handler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"socket_connections":    atomic.LoadInt64(&h.connections),
		"socket_accepted":       atomic.LoadInt64(&h.accepted),
		"socket_typing_dropped": atomic.LoadInt64(&h.typingDropped),
	}
}
