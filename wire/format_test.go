package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/id"
)

func TestParseLegacy_Formatting(t *testing.T) {
	cases := []struct {
		name          string
		line          string
		wantPlain     string
		wantFormatted *string
	}{
		{
			name:      "plain text, no formatting",
			line:      "hello world",
			wantPlain: "hello world",
		},
		{
			name:          "bold and italic toggles",
			line:          "\x02bold\x02 and \x1Ditalic\x1D",
			wantPlain:     "bold and italic",
			wantFormatted: strPtr("<b>bold</b> and <i>italic</i>"),
		},
		{
			name:          "underline",
			line:          "\x1Funderline\x1F",
			wantPlain:     "underline",
			wantFormatted: strPtr("<u>underline</u>"),
		},
		{
			name:          "color sequence consumed but ignored",
			line:          "\x0304red\x03 text",
			wantPlain:     "red text",
			wantFormatted: nil,
		},
		{
			name:          "reset closes open tags",
			line:          "\x02\x1Dboth\x0Ftail",
			wantPlain:     "bothtail",
			wantFormatted: strPtr("<b><i>both</i></b>tail"),
		},
		{
			name:          "unbalanced tag closed at end of input",
			line:          "\x02unterminated",
			wantPlain:     "unterminated",
			wantFormatted: strPtr("<b>unterminated</b>"),
		},
		{
			name:          "html special chars escaped",
			line:          "<script>&",
			wantPlain:     "<script>&",
			wantFormatted: nil,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			plain, formatted := ParseLegacy(tt.line, nil)
			assert.Equal(t, tt.wantPlain, plain)
			if tt.wantFormatted == nil {
				assert.Nil(t, formatted)
			} else {
				if assert.NotNil(t, formatted) {
					assert.Equal(t, *tt.wantFormatted, *formatted)
				}
			}
		})
	}
}

func TestParseLegacy_Pills(t *testing.T) {
	pills := map[string]Pill{
		"alice": {UserID: id.UserID("@irc_net_alice:example.org"), Displayname: "Alice"},
	}

	plain, formatted := ParseLegacy("hey alice, you there?", pills)
	assert.Equal(t, "hey alice, you there?", plain)
	if assert.NotNil(t, formatted, "a pill link must force formatted to be emitted") {
		assert.Contains(t, *formatted, `<a href="https://matrix.to/#/@irc_net_alice:example.org">Alice</a>`)
	}
}

func TestParseLegacy_NoPillMatch(t *testing.T) {
	pills := map[string]Pill{
		"alice": {UserID: id.UserID("@irc_net_alice:example.org"), Displayname: "Alice"},
	}
	plain, formatted := ParseLegacy("no mentions here", pills)
	assert.Equal(t, "no mentions here", plain)
	assert.Nil(t, formatted)
}

func strPtr(s string) *string { return &s }
