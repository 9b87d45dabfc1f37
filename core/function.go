package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// IsWallet reports whether s is a 0x-prefixed 20 byte hex address
func IsWallet(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeWallet returns the lower-cased canonical form of a wallet address
func NormalizeWallet(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !IsWallet(s) {
		return "", NewErrorInvalidArgument("invalid wallet address: %q", s)
	}
	return strings.ToLower(s), nil
}

// IsUUID reports whether s is a canonical uuid string
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func SameWallet(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Key returns the flat cache key of an access determination
func (k AccessKey) Key() string {
	return fmt.Sprintf("access:%d:%s:%s", k.ChainID, strings.ToLower(k.Contract), strings.ToLower(k.Wallet))
}

func ChannelName(eventID string) string {
	return ChannelPrefix + eventID
}

func PresenceKey(eventID string) string {
	return PresencePrefix + eventID
}

// Preview builds the reply/sidebar preview of a message
func (m Message) Preview() *ReplyPreview {
	content := m.Content
	if m.IsDeleted() {
		content = DeletedPlaceholder
	}
	return &ReplyPreview{
		ID:        m.ID,
		Author:    m.Author,
		Content:   content,
		DeletedAt: m.DeletedAt,
		Profile:   m.Profile,
	}
}

// IsDeletedFor reports whether wallet hid the message for themselves
func (m Message) IsDeletedFor(wallet string) bool {
	for _, w := range m.DeletedFor {
		if SameWallet(w, wallet) {
			return true
		}
	}
	return false
}
