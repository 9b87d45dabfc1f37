package core

import (
	"time"
)

const (
	MaxContentLength = 500
	DefaultPageSize  = 50

	DefaultAccessCacheTTL  = 60 * time.Second
	DefaultRateLimitWindow = 60 * time.Second
	DefaultRateLimitMax    = 20
	DefaultTypingInterval  = 3 * time.Second

	DeletedPlaceholder = "This message was deleted"
)

type DeleteMode string

const (
	DeleteModeForEveryone DeleteMode = "for_everyone"
	DeleteModeForMe       DeleteMode = "for_me"
)

func (m DeleteMode) IsValid() bool {
	return m == DeleteModeForEveryone || m == DeleteModeForMe
}

// AccessVerdict is the internal result of a membership check
type AccessVerdict int

const (
	AccessDenied AccessVerdict = iota
	AccessAllowed
	AccessUnknown // upstream failed, treated as denied at the boundary
)

func (v AccessVerdict) String() string {
	switch v {
	case AccessAllowed:
		return "Allowed"
	case AccessDenied:
		return "Denied"
	case AccessUnknown:
		return "Unknown"
	default:
		return "Error"
	}
}

type SignalType string

const (
	SignalInsert   SignalType = "insert"
	SignalUpdate   SignalType = "update"
	SignalTyping   SignalType = "typing"
	SignalPresence SignalType = "presence"
)

const (
	ChannelPrefix  = "chat:"
	PresencePrefix = "chat:presence:"
)
