package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tixgate/eventchat/core"
)

func TestSanitizeStripsAngleBrackets(t *testing.T) {
	cleaned, err := Sanitize("<script>hi</script>")
	if assert.NoError(t, err) {
		assert.Equal(t, "scripthi/script", cleaned)
	}
}

func TestSanitizeStripsControlCharacters(t *testing.T) {
	cleaned, err := Sanitize("  hello\x00\x07 world\x7f\t\n ")
	if assert.NoError(t, err) {
		assert.Equal(t, "hello world", cleaned)
	}

	// newlines are control characters too
	cleaned, err = Sanitize("line1\nline2")
	if assert.NoError(t, err) {
		assert.Equal(t, "line1line2", cleaned)
	}
}

func TestSanitizeKeepsUnicode(t *testing.T) {
	cleaned, err := Sanitize("gm 🎟️ こんにちは & \"quotes\"")
	if assert.NoError(t, err) {
		assert.Equal(t, "gm 🎟️ こんにちは & \"quotes\"", cleaned)
	}
}

func TestSanitizeRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "<>", "\x01\x02", " <<>> "} {
		_, err := Sanitize(raw)
		assert.ErrorAs(t, err, &core.ErrorInvalidArgument{}, "input %q", raw)
	}
}

func TestSanitizeLength(t *testing.T) {
	exact := strings.Repeat("a", core.MaxContentLength)
	cleaned, err := Sanitize(exact)
	assert.NoError(t, err)
	assert.Equal(t, exact, cleaned)

	_, err = Sanitize(exact + "a")
	assert.ErrorAs(t, err, &core.ErrorInvalidArgument{})

	// length is measured after stripping
	cleaned, err = Sanitize(exact + "<<<>>>")
	assert.NoError(t, err)
	assert.Equal(t, exact, cleaned)

	// characters, not bytes
	multibyte := strings.Repeat("あ", core.MaxContentLength)
	_, err = Sanitize(multibyte)
	assert.NoError(t, err)
}
