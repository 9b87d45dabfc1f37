//go:generate go run go.uber.org/mock/mockgen -source=client.go -destination=mock/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tixgate/eventchat/core"
)

const (
	defaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("client")

// Client calls the chat gateway over HTTP
type Client interface {
	ListMessages(ctx context.Context, eventID, wallet string, before *time.Time) (core.MessagePage, error)
	SendMessage(ctx context.Context, eventID, wallet, content string, replyTo *string) (core.Message, error)
	EditMessage(ctx context.Context, messageID, wallet, content string) (core.Message, error)
	DeleteMessage(ctx context.Context, messageID, wallet string, mode core.DeleteMode) error
	ListMemberships(ctx context.Context, wallet string) ([]core.Membership, error)
}

// Error is a non-ok response of the gateway
type Error struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.StatusCode, e.Message)
}

type client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client of the gateway served at endpoint, e.g. https://example.com/api
func NewClient(endpoint string) Client {
	return &client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
	}
}

func (c *client) ListMessages(ctx context.Context, eventID, wallet string, before *time.Time) (core.MessagePage, error) {
	ctx, span := tracer.Start(ctx, "Client.ListMessages")
	defer span.End()

	query := url.Values{}
	query.Set("wallet", wallet)
	if before != nil {
		query.Set("before", before.UTC().Format(time.RFC3339Nano))
	}

	var page core.MessagePage
	err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(eventID)+"/messages?"+query.Encode(), nil, &page)
	if err != nil {
		span.RecordError(err)
		return core.MessagePage{}, err
	}

	return page, nil
}

func (c *client) SendMessage(ctx context.Context, eventID, wallet, content string, replyTo *string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Client.SendMessage")
	defer span.End()

	request := core.SendRequest{
		Wallet:  wallet,
		Content: content,
		ReplyTo: replyTo,
	}

	var message core.Message
	err := c.do(ctx, http.MethodPost, "/chat/"+url.PathEscape(eventID)+"/messages", request, &message)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return message, nil
}

func (c *client) EditMessage(ctx context.Context, messageID, wallet, content string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Client.EditMessage")
	defer span.End()

	request := core.EditRequest{
		Wallet:  wallet,
		Content: content,
	}

	var message core.Message
	err := c.do(ctx, http.MethodPatch, "/chat/messages/"+url.PathEscape(messageID), request, &message)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return message, nil
}

func (c *client) DeleteMessage(ctx context.Context, messageID, wallet string, mode core.DeleteMode) error {
	ctx, span := tracer.Start(ctx, "Client.DeleteMessage")
	defer span.End()

	query := url.Values{}
	query.Set("wallet", wallet)
	query.Set("mode", string(mode))

	err := c.do(ctx, http.MethodDelete, "/chat/messages/"+url.PathEscape(messageID)+"?"+query.Encode(), nil, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (c *client) ListMemberships(ctx context.Context, wallet string) ([]core.Membership, error) {
	ctx, span := tracer.Start(ctx, "Client.ListMemberships")
	defer span.End()

	query := url.Values{}
	query.Set("wallet", wallet)

	var memberships []core.Membership
	err := c.do(ctx, http.MethodGet, "/chat/memberships?"+query.Encode(), nil, &memberships)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return memberships, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, content any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var response core.ResponseBase[json.RawMessage]
	err = json.Unmarshal(raw, &response)
	if err != nil || response.Status != "ok" {
		apiErr := &Error{
			StatusCode: resp.StatusCode,
			Message:    response.Error,
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		return apiErr
	}

	if content == nil {
		return nil
	}
	return json.Unmarshal(response.Content, content)
}
