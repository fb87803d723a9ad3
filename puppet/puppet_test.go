package puppet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/id"
)

func testPrefix() Prefix {
	return Prefix{Localpart: "irc_", ServerName: "bridge.example.org"}
}

func TestPrefix_UserID(t *testing.T) {
	p := testPrefix()
	got := p.UserID("freenode", "Alice")
	assert.Equal(t, id.UserID("@irc_freenode_alice:bridge.example.org"), got)
}

func TestPrefix_IsPuppet(t *testing.T) {
	p := testPrefix()
	assert.True(t, p.IsPuppet(p.UserID("freenode", "alice")))
	assert.False(t, p.IsPuppet(id.UserID("@someoneelse:bridge.example.org")))
	assert.False(t, p.IsPuppet(id.UserID("@irc_freenode_alice:other.server")))
	assert.False(t, p.IsPuppet(id.UserID("not-a-mxid")))
}

func TestPrefix_ParseRoundTrip(t *testing.T) {
	p := testPrefix()
	userID := p.UserID("freenode", "Alice")

	network, nick, ok := p.Parse(userID)
	assert.True(t, ok)
	assert.Equal(t, "freenode", network)
	assert.Equal(t, "alice", nick)
}

func TestPrefix_ParseRejectsForeignServer(t *testing.T) {
	p := testPrefix()
	_, _, ok := p.Parse(id.UserID("@irc_freenode_alice:other.server"))
	assert.False(t, ok)
}

func TestPrefix_ParseRejectsWrongPrefix(t *testing.T) {
	p := testPrefix()
	_, _, ok := p.Parse(id.UserID("@notirc_freenode_alice:bridge.example.org"))
	assert.False(t, ok)
}

func TestPrefix_ParseRejectsMissingUnderscore(t *testing.T) {
	p := testPrefix()
	_, _, ok := p.Parse(id.UserID("@irc_noseparator:bridge.example.org"))
	assert.False(t, ok)
}

func TestDisplaynameCache_SetAndIsCached(t *testing.T) {
	c := NewDisplaynameCache()
	alice := id.UserID("@irc_freenode_alice:bridge.example.org")

	assert.False(t, c.IsCached(alice, "alice"))
	c.Set(alice, "alice")
	assert.True(t, c.IsCached(alice, "alice"))
	assert.False(t, c.IsCached(alice, "alice2"))
}

func TestDisplaynameCache_UnknownUser(t *testing.T) {
	c := NewDisplaynameCache()
	bob := id.UserID("@irc_freenode_bob:bridge.example.org")
	assert.False(t, c.IsCached(bob, "bob"))
}
