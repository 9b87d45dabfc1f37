package channel

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tixgate/eventchat/core"
)

// Handler is the HTTP surface of event channels
type Handler interface {
	List(c echo.Context) error
	Send(c echo.Context) error
	Edit(c echo.Context) error
	Delete(c echo.Context) error
	Memberships(c echo.Context) error
}

type handler struct {
	service core.ChannelService
}

// NewHandler creates a new handler
func NewHandler(service core.ChannelService) Handler {
	return &handler{service: service}
}

// List returns one page of channel history
// GET /chat/:event/messages?wallet=&before=
func (h handler) List(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Channel.Handler.List")
	defer span.End()

	var before *time.Time
	if query := c.QueryParam("before"); query != "" {
		t, err := time.Parse(time.RFC3339Nano, query)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid before cursor"})
		}
		before = &t
	}

	page, err := h.service.ListMessages(ctx, c.Param("event"), c.QueryParam("wallet"), before)
	if err != nil {
		span.RecordError(err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "content": page})
}

// Send posts a message
// POST /chat/:event/messages
func (h handler) Send(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Channel.Handler.Send")
	defer span.End()

	var request core.SendRequest
	err := c.Bind(&request)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid request"})
	}

	message, err := h.service.SendMessage(ctx, c.Param("event"), request.Wallet, request.Content, request.ReplyTo)
	if err != nil {
		span.RecordError(err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"status": "ok", "content": message})
}

// Edit replaces the content of a message
// PATCH /chat/messages/:id
func (h handler) Edit(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Channel.Handler.Edit")
	defer span.End()

	var request core.EditRequest
	err := c.Bind(&request)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid request"})
	}

	message, err := h.service.EditMessage(ctx, c.Param("id"), request.Wallet, request.Content)
	if err != nil {
		span.RecordError(err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "content": message})
}

// Delete deletes a message for everyone or for the requester
// DELETE /chat/messages/:id?wallet=&mode=
func (h handler) Delete(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Channel.Handler.Delete")
	defer span.End()

	mode := core.DeleteMode(c.QueryParam("mode"))
	err := h.service.DeleteMessage(ctx, c.Param("id"), c.QueryParam("wallet"), mode)
	if err != nil {
		span.RecordError(err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "content": echo.Map{"success": true}})
}

// Memberships returns the channel sidebar of a wallet
// GET /chat/memberships?wallet=
func (h handler) Memberships(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Channel.Handler.Memberships")
	defer span.End()

	memberships, err := h.service.ListMemberships(ctx, c.QueryParam("wallet"))
	if err != nil {
		span.RecordError(err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "content": memberships})
}

func respondError(c echo.Context, err error) error {
	status := core.StatusCode(err)

	var limited core.ErrorRateLimited
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(
			c.Request().Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("path", c.Path()),
			slog.String("module", "channel"),
		)
	}

	return c.JSON(status, echo.Map{"status": "error", "error": core.PublicMessage(err)})
}
