package wire

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// SanitizeFragment re-serializes an HTML fragment the bridge itself
// built out of legacy control bytes before it is echoed into a fabric
// room a second time, e.g. the local "You said: " self-echo a
// DirectRoom posts in place of relaying its own line. It confirms the
// fragment tokenizes cleanly, and returns ok=false if it doesn't so
// the caller can fall back to the plain-text form instead of
// forwarding malformed markup.
func SanitizeFragment(fragment string) (out string, ok bool) {
	if fragment == "" {
		return "", true
	}
	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			if errors.Is(tok.Err(), io.EOF) {
				return b.String(), true
			}
			return "", false
		default:
			b.WriteString(tok.Token().String())
		}
	}
}
