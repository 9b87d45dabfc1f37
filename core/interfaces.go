//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=mock/services.go
package core

import (
	"context"
	"math/big"
	"time"
)

type AccessCache interface {
	Get(ctx context.Context, key AccessKey) (isHolder bool, ok bool)
	Set(ctx context.Context, key AccessKey, isHolder bool, ttl time.Duration) error
}

type AccessService interface {
	Check(ctx context.Context, event Event, wallet string) (AccessVerdict, error)
	IsMember(ctx context.Context, event Event, wallet string) bool
	GetMetrics() map[string]int64
}

type ChainReader interface {
	TokenBalance(ctx context.Context, chainID int64, contract, wallet string) (*big.Int, error)
	ActiveListingsBySeller(ctx context.Context, chainID int64, seller string) ([]Listing, error)
}

type ChannelService interface {
	ListMessages(ctx context.Context, eventID, wallet string, before *time.Time) (MessagePage, error)
	SendMessage(ctx context.Context, eventID, wallet, content string, replyTo *string) (Message, error)
	EditMessage(ctx context.Context, messageID, wallet, content string) (Message, error)
	DeleteMessage(ctx context.Context, messageID, wallet string, mode DeleteMode) error
	ListMemberships(ctx context.Context, wallet string) ([]Membership, error)
	Authorize(ctx context.Context, eventID, wallet string) (Event, error)
}

type EventService interface {
	Get(ctx context.Context, id string) (Event, error)
	ListOrganized(ctx context.Context, wallet string) ([]Event, error)
	ListHeld(ctx context.Context, wallet string) ([]Event, error)
	Touch(ctx context.Context, eventID, messageID string, at time.Time) error
	GetActivities(ctx context.Context, eventIDs []string) (map[string]ChannelActivity, error)
}

type MessageService interface {
	Send(ctx context.Context, event Event, author, content string, replyTo *string) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
	GetMany(ctx context.Context, ids []string) (map[string]Message, error)
	Edit(ctx context.Context, id, requester, content string) (Message, error)
	DeleteForEveryone(ctx context.Context, id, requester string) (Message, error)
	DeleteForMe(ctx context.Context, id, requester string) (Message, error)
	List(ctx context.Context, eventID, viewer string, before *time.Time) (MessagePage, error)
	Count(ctx context.Context) (int64, error)
}

type ProfileService interface {
	Get(ctx context.Context, wallet string) (UserProfile, error)
	GetMany(ctx context.Context, wallets []string) (map[string]UserProfile, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, wallet string) (bool, time.Duration, error)
	GetMetrics() map[string]int64
}

type RealtimeService interface {
	Publish(ctx context.Context, signal Signal) error
	Subscribe(ctx context.Context, eventIDs []string, signals chan<- Signal) error
	Join(ctx context.Context, eventID, wallet string) ([]string, error)
	Leave(ctx context.Context, eventID, wallet string) ([]string, error)
	Online(ctx context.Context, eventID string) ([]string, error)
}
