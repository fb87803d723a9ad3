package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/id"
)

func TestRender_PlainRoundTrip(t *testing.T) {
	lines := Render(RenderParams{
		PlainBody: "hello world",
		Nick:      "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"hello world"}, lines)
}

func TestRender_FormattedBold(t *testing.T) {
	lines := Render(RenderParams{
		HasFormatted:  true,
		FormattedBody: "<b>bold</b> text",
		Nick:          "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"\x02bold\x02 text"}, lines)
}

func TestRender_DisplaynameSubstitution(t *testing.T) {
	alice := id.UserID("@irc_net_alice:example.org")
	lines := Render(RenderParams{
		PlainBody:    "hey " + string(alice) + " and @Alice too",
		Displaynames: map[id.UserID]string{alice: "Alice"},
		Nick:         "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"hey Alice and Alice too"}, lines)
}

func TestRender_ReplyPrefixFromDifferentSender(t *testing.T) {
	me := id.UserID("@bridge_irc_net_bob:example.org")
	other := id.UserID("@irc_net_alice:example.org")
	lines := Render(RenderParams{
		PlainBody:   "I agree",
		EventSender: me,
		ReplyTo:     &ReplyContext{Sender: other, Displayname: "Alice"},
		Nick:        "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"Alice: I agree"}, lines)
}

func TestRender_NoReplyPrefixWhenSameSender(t *testing.T) {
	me := id.UserID("@bridge_irc_net_bob:example.org")
	lines := Render(RenderParams{
		PlainBody:   "talking to myself",
		EventSender: me,
		ReplyTo:     &ReplyContext{Sender: me, Displayname: "Bob"},
		Nick:        "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"talking to myself"}, lines)
}

func TestRender_DropsBlankLines(t *testing.T) {
	lines := Render(RenderParams{
		PlainBody: "first\n\n\nsecond",
		Nick:      "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestRender_StripsQuotedReplyFallback(t *testing.T) {
	lines := Render(RenderParams{
		PlainBody:        "> alice: original message\n\nmy reply",
		HasReplyFallback: true,
		Nick:             "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"my reply"}, lines)
}

func TestRender_PrefixAppliesToFirstLineOnly(t *testing.T) {
	lines := Render(RenderParams{
		PlainBody: "first\nsecond",
		Prefix:    "* ",
		Nick:      "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"* first", "second"}, lines)
}

func TestRender_StripsControlCharsButKeepsZWSP(t *testing.T) {
	lines := Render(RenderParams{
		PlainBody: "a​b\x07c",
		Nick:      "n", User: "u", Host: "h", Target: "#c",
	})
	assert.Equal(t, []string{"a​bc"}, lines)
}
