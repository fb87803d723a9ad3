package wire

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"
)

// blankLineRgxp matches a whitespace-only rendered line; those are
// never sent to the legacy network.
var blankLineRgxp = regexp.MustCompile(`^\s*$`)

// ReplyContext carries the resolved m.in_reply_to target, used to
// prefix the first rendered line with the replied-to sender's name
// when that sender differs from the event's own.
type ReplyContext struct {
	Sender      id.UserID
	Displayname string // falls back to Sender when unknown
}

// RenderParams is the input to Render: an already-resolved fabric
// message body (the relay engine has already chased m.replace links
// and picked m.new_content vs. the original content) plus the framing
// parameters needed to turn it into wire-ready legacy lines.
type RenderParams struct {
	PlainBody        string
	FormattedBody    string
	HasFormatted     bool
	HasReplyFallback bool // content carried a quoted ">" fallback block to strip

	Displaynames map[id.UserID]string // fabric user id -> known displayname
	EventSender  id.UserID
	ReplyTo      *ReplyContext

	Prefix                   string // prepended to the first emitted line only
	Nick, User, Host, Target string
}

// Render turns a fabric message into the ordered sequence of
// legacy-ready wire lines, already split to the legacy 512-byte frame
// budget.
func Render(p RenderParams) []string {
	var lines []string

	if p.HasFormatted {
		lines = strings.Split(renderHTML(p.FormattedBody, p.Displaynames), "\n")
	} else {
		body := p.PlainBody
		for userID, displayname := range p.Displaynames {
			body = strings.ReplaceAll(body, string(userID), displayname)
			// FluffyChat and some other clients prefix mentions in the
			// plain-text reply fallback with "@".
			body = strings.ReplaceAll(body, "@"+displayname, displayname)
		}
		lines = strings.Split(body, "\n")

		if p.HasReplyFallback {
			lines = stripQuotedFallback(lines)
		}
	}

	lines = dropBlankLines(lines)

	if p.ReplyTo != nil && p.ReplyTo.Sender != p.EventSender && len(lines) > 0 {
		sender := p.ReplyTo.Displayname
		if sender == "" {
			sender = string(p.ReplyTo.Sender)
		}
		lines[0] = sender + ": " + lines[0]
	}

	var out []string
	for i, line := range lines {
		if i == 0 && p.Prefix != "" {
			line = p.Prefix + line
		}
		line = stripControlExceptZWSP(line)
		out = append(out, Frame(p.Nick, p.User, p.Host, p.Target, line)...)
	}
	return out
}

// stripQuotedFallback removes the leading block of "> ..." quote lines
// a client prepends to a plain-text reply body, plus the first
// non-quoted line (which is expected to be the blank separator). The
// loop is deliberately forgiving: a reply body without a separator
// line just loses its first content line, same as every legacy client
// the bridge has been tested against tolerates.
func stripQuotedFallback(lines []string) []string {
	for len(lines) > 0 {
		line := lines[0]
		lines = lines[1:]
		if !strings.HasPrefix(line, ">") {
			break
		}
	}
	return lines
}

func dropBlankLines(lines []string) []string {
	out := lines[:0:0]
	for _, l := range lines {
		if !blankLineRgxp.MatchString(l) {
			out = append(out, l)
		}
	}
	return out
}

// stripControlExceptZWSP removes every Unicode general-category-C
// (control/format/surrogate/private-use) rune except U+200B, which the
// bridge itself inserts as an anti-ping marker.
func stripControlExceptZWSP(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\u200b' {
			return r
		}
		if unicode.In(r, unicode.Cc, unicode.Cf, unicode.Co, unicode.Cs) {
			return -1
		}
		return r
	}, s)
}

// htmlParser builds the converter set that turns a fabric HTML
// fragment into legacy control-byte text, targeting the legacy wire
// codes instead of format.HTMLParser's usual Markdown output.
func htmlParser(displaynames map[id.UserID]string) *format.HTMLParser {
	return &format.HTMLParser{
		Newline: "\n",
		BoldConverter: func(text string, _ format.Context) string {
			return string(rune(ctrlBold)) + text + string(rune(ctrlBold))
		},
		ItalicConverter: func(text string, _ format.Context) string {
			return string(rune(ctrlItalic)) + text + string(rune(ctrlItalic))
		},
		UnderlineConverter: func(text string, _ format.Context) string {
			return string(rune(ctrlUnderline)) + text + string(rune(ctrlUnderline))
		},
		PillConverter: func(displayname, mxid, _ string, _ format.Context) string {
			if name, ok := displaynames[id.UserID(mxid)]; ok {
				return name
			}
			return displayname
		},
	}
}

func renderHTML(fragment string, displaynames map[id.UserID]string) string {
	return htmlParser(displaynames).Parse(fragment, format.NewContext(context.Background()))
}
