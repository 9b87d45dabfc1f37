package core

import (
	"time"
)

// Signal is websocket root packet model
type Signal struct {
	Type    SignalType `json:"type"`
	EventID string     `json:"eventId"`
	Message *Message   `json:"message,omitempty"`
	Wallet  string     `json:"wallet,omitempty"`
	Label   string     `json:"label,omitempty"`
	Online  []string   `json:"online,omitempty"`
}

// MessagePage is one page of channel history in display order
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// Membership is a sidebar entry
type Membership struct {
	Event       Event         `json:"event"`
	Role        string        `json:"role"` // organizer or holder
	LastMessage *ReplyPreview `json:"lastMessage,omitempty"`
	LastActive  time.Time     `json:"lastActive"`
}

// Listing is an active resale listing on the marketplace contract
type Listing struct {
	ListingID  string `json:"listingId"`
	NFTAddress string `json:"nftAddress"`
	TokenID    string `json:"tokenId"`
	Seller     string `json:"seller"`
	Active     bool   `json:"active"`
}

// AccessKey identifies a cached membership determination
type AccessKey struct {
	ChainID  int64
	Contract string
	Wallet   string
}
