// Package realtime carries chat signals between gateway instances and websocket clients
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"

	"github.com/tixgate/eventchat/core"
)

var tracer = otel.Tracer("realtime")

// leaveScript decrements a presence refcount and removes the wallet at zero
var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

type service struct {
	rdb *redis.Client
}

// NewService creates a new realtime service
func NewService(rdb *redis.Client) core.RealtimeService {
	return &service{rdb}
}

// Publish sends a signal to every subscriber of the event channel
func (s *service) Publish(ctx context.Context, signal core.Signal) error {
	ctx, span := tracer.Start(ctx, "Realtime.Service.Publish")
	defer span.End()

	span.SetAttributes(
		attribute.String("event", signal.EventID),
		attribute.String("type", string(signal.Type)),
	)

	payload, err := json.Marshal(signal)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.rdb.Publish(ctx, core.ChannelName(signal.EventID), payload).Err()
	if err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// Subscribe forwards signals of the given events into signals until ctx is done
func (s *service) Subscribe(ctx context.Context, eventIDs []string, signals chan<- core.Signal) error {
	if len(eventIDs) == 0 {
		return nil
	}

	channels := make([]string, len(eventIDs))
	for i, eventID := range eventIDs {
		channels[i] = core.ChannelName(eventID)
	}

	pubsub := s.rdb.Subscribe(ctx, channels...)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	_, err := pubsub.Receive(ctx)
	if err != nil {
		return err
	}

	psch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-psch:
			if !ok {
				return nil
			}
			var signal core.Signal
			err := json.Unmarshal([]byte(msg.Payload), &signal)
			if err != nil {
				slog.ErrorContext(
					ctx, "failed to unmarshal signal",
					slog.String("error", err.Error()),
					slog.String("module", "realtime"),
				)
				continue
			}
			select {
			case signals <- signal:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Join registers wallet as online in the event and returns the online wallets.
// A wallet with several open sockets is registered once.
func (s *service) Join(ctx context.Context, eventID, wallet string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Realtime.Service.Join")
	defer span.End()

	err := s.rdb.HIncrBy(ctx, core.PresenceKey(eventID), wallet, 1).Err()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return s.Online(ctx, eventID)
}

// Leave unregisters one socket of wallet and returns the online wallets
func (s *service) Leave(ctx context.Context, eventID, wallet string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Realtime.Service.Leave")
	defer span.End()

	err := leaveScript.Run(ctx, s.rdb, []string{core.PresenceKey(eventID)}, wallet).Err()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return s.Online(ctx, eventID)
}

// Online returns the wallets currently connected to the event, sorted
func (s *service) Online(ctx context.Context, eventID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Realtime.Service.Online")
	defer span.End()

	wallets, err := s.rdb.HKeys(ctx, core.PresenceKey(eventID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slices.Sort(wallets)
	return wallets, nil
}
