// Package filter cleans user supplied message text
package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/tixgate/eventchat/core"
)

// Sanitize removes angle brackets and control characters and trims the result.
// Output is not HTML-safe; renderers still escape on display.
func Sanitize(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, raw)

	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", core.NewErrorInvalidArgument("message content is empty")
	}
	if utf8.RuneCountInString(cleaned) > core.MaxContentLength {
		return "", core.NewErrorInvalidArgument("message content exceeds %d characters", core.MaxContentLength)
	}

	return cleaned, nil
}
