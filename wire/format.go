// Package wire implements the bidirectional text translation between
// the fabric's HTML-flavoured messages and the legacy network's
// line-oriented, control-byte-formatted wire text.
package wire

import (
	"html"
	"regexp"
	"strings"

	"maunium.net/go/mautrix/id"
)

// Legacy in-band control bytes.
const (
	ctrlBold      = '\x02'
	ctrlColor     = '\x03'
	ctrlItalic    = '\x1D'
	ctrlUnderline = '\x1F'
	ctrlReverse   = '\x16'
	ctrlReset     = '\x0F'
)

// Pill is a candidate mention target: a legacy nickname resolves to a
// fabric user and the displayname shown in the link text.
type Pill struct {
	UserID      id.UserID
	Displayname string
}

// legacyTokenRgxp walks a legacy line into (optional control sequence,
// following plain run) pairs, so that color-code digit sequences are
// consumed and discarded without needing a hand-rolled byte scanner.
var legacyTokenRgxp = regexp.MustCompile(
	"(\x02|\x03[0-9]{0,2}(?:,[0-9]{1,2})?|\x1D|\x1F|\x16|\x0F)?([^\x02\x03\x1D\x1F\x16\x0F]*)",
)

// pillTokenRgxp is deliberately loose: it matches more than legacy
// nicknames ever will, so pillification can occasionally fire on
// non-nick tokens. Kept as-is for compatibility with rooms that
// already depend on the behavior.
var pillTokenRgxp = regexp.MustCompile(`[^\s?!:;,.]+(?:\.[A-Za-z0-9])?`)

// ParseLegacy converts one line of raw legacy text into a fabric
// message. plain is always populated; formatted is nil unless the line
// carried formatting codes or produced at least one pill link.
//
// pills, when non-nil, maps a lowercased legacy nickname to the fabric
// identity it should be pillified into.
func ParseLegacy(line string, pills map[string]Pill) (plain string, formatted *string) {
	var plainBuf, fmtBuf []byte
	haveFormatting := false

	// open holds the tags currently open, in the order they were
	// opened, so that a reset (\x0F) or end-of-input can close them in
	// reverse order and keep the fragment balanced.
	var open []string

	toggle := func(tag string) {
		haveFormatting = true
		idx := -1
		for i, t := range open {
			if t == tag {
				idx = i
				break
			}
		}
		if idx >= 0 {
			fmtBuf = append(fmtBuf, "</"+tag+">"...)
			open = append(open[:idx], open[idx+1:]...)
		} else {
			fmtBuf = append(fmtBuf, "<"+tag+">"...)
			open = append(open, tag)
		}
	}

	closeAll := func() {
		for i := len(open) - 1; i >= 0; i-- {
			fmtBuf = append(fmtBuf, "</"+open[i]+">"...)
		}
		open = nil
	}

	for _, m := range legacyTokenRgxp.FindAllStringSubmatch(line, -1) {
		ctrl, text := m[1], m[2]

		if ctrl == "" && text == "" {
			// regex matched the empty string at the end of input; stop
			// to avoid spinning on a zero-width match.
			break
		}

		if ctrl != "" {
			switch ctrl[0] {
			case ctrlBold:
				toggle("b")
			case ctrlItalic:
				toggle("i")
			case ctrlUnderline:
				toggle("u")
			case ctrlReset:
				closeAll()
			case ctrlColor, ctrlReverse:
				// color digits already consumed by the regex; reverse
				// video has no fabric equivalent and is ignored.
			}
		}

		if text != "" {
			plainBuf = append(plainBuf, text...)

			escaped := html.EscapeString(text)
			if pills != nil {
				var pilled bool
				escaped, pilled = pillify(escaped, pills)
				if pilled {
					// a pill link forces formatted to be emitted even
					// absent any control bytes
					haveFormatting = true
				}
			}
			fmtBuf = append(fmtBuf, escaped...)
		}
	}

	closeAll()

	plain = string(plainBuf)
	if haveFormatting {
		f := string(fmtBuf)
		formatted = &f
	}
	return plain, formatted
}

func pillify(escaped string, pills map[string]Pill) (string, bool) {
	pilled := false
	out := pillTokenRgxp.ReplaceAllStringFunc(escaped, func(tok string) string {
		p, ok := pills[strings.ToLower(tok)]
		if !ok {
			return tok
		}
		pilled = true
		return `<a href="https://matrix.to/#/` + html.EscapeString(string(p.UserID)) + `">` +
			html.EscapeString(p.Displayname) + `</a>`
	})
	return out, pilled
}
