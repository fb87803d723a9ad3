package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/commands"
	"github.com/mk6i/matrix-irc-bridge/legacy"
	"github.com/mk6i/matrix-irc-bridge/puppet"
)

func testDirectNetwork(t *testing.T, conn legacy.Conn) *NetworkRoom {
	t.Helper()
	prefix := puppet.Prefix{Localpart: "irc_", ServerName: "example.org"}
	return NewNetworkRoom(id.UserID("@op:example.org"), "net", nil, conn, prefix)
}

func TestNewDirectRoom_ConfigRoundTrip(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	d.ID = "!direct:example.org"
	d.AddMember(d.Operator, "")

	assert.True(t, d.IsValid())

	cfg := d.ToConfig()
	d2 := NewDirectRoom(n, "")
	assert.NoError(t, d2.FromConfig(cfg))
	assert.Equal(t, d.ToConfig(), d2.ToConfig())
}

func TestDirectRoom_FromConfig_RequiresNameAndNetwork(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")

	assert.ErrorContains(t, d.FromConfig(DirectConfig{Network: "net"}), "name")
	assert.ErrorContains(t, d.FromConfig(DirectConfig{Name: "alice"}), "network")
}

func TestDirectRoom_OnPrivmsg_SelfEchoDoesNotRelay(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	d.AddMember(d.Operator, "")

	var relayed bool
	var selfText string
	needsInvite, needsRefresh := d.OnPrivmsg("bridgebot", "hello there", func(plain, formatted, fallback string) {
		relayed = true
	}, func(plain, formatted string) {
		selfText = plain
	})

	assert.False(t, relayed)
	assert.Equal(t, "You said: hello there", selfText)
	assert.False(t, needsInvite)
	assert.False(t, needsRefresh)
}

func TestDirectRoom_OnPrivmsg_RelaysPeerMessage(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	d.AddMember(d.Operator, "")

	var plainGot, fallbackGot string
	var relayed bool
	needsInvite, needsRefresh := d.OnPrivmsg("alice", "hello world", func(plain, formatted, fallback string) {
		relayed = true
		plainGot = plain
		fallbackGot = fallback
	}, func(plain, formatted string) {
		t.Fatal("sendSelf must not be called for a peer message")
	})

	assert.True(t, relayed)
	assert.Equal(t, "hello world", plainGot)
	assert.Contains(t, fallbackGot, "hello world")
	assert.False(t, needsInvite, "operator is already a member")
	assert.True(t, needsRefresh, "puppet displayname has never been cached")
}

func TestDirectRoom_OnPrivmsg_FlagsNeedsInviteWhenOperatorLeft(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	// operator never added as a member, simulating a prior leave.

	needsInvite, _ := d.OnPrivmsg("alice", "hello", func(string, string, string) {}, func(string, string) {})
	assert.True(t, needsInvite)
}

func TestDirectRoom_OnPrivnotice_SelfEcho(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	d.AddMember(d.Operator, "")

	plain, _, selfEcho, nonMember := d.OnPrivnotice("bridgebot", "noted")
	assert.Equal(t, "noted", plain)
	assert.True(t, selfEcho)
	assert.False(t, nonMember)
}

func TestDirectRoom_OnPrivnotice_NonMemberSurfacesViaNetwork(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")
	// operator has left: not a member.

	_, _, selfEcho, nonMember := d.OnPrivnotice("alice", "ping")
	assert.False(t, selfEcho)
	assert.True(t, nonMember)
}

func TestDirectRoom_OnCTCP_Action(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")

	emote, isSelf, noticePlain, _ := d.OnCTCP("alice", "ACTION", "waves")
	assert.Equal(t, "waves", emote)
	assert.False(t, isSelf)
	assert.Empty(t, noticePlain)
}

func TestDirectRoom_OnCTCP_SelfAction(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")

	emote, isSelf, _, _ := d.OnCTCP("bridgebot", "ACTION", "waves")
	assert.Equal(t, "(you) waves", emote)
	assert.True(t, isSelf)
}

func TestDirectRoom_OnCTCP_OtherIsIgnoredNotice(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")

	emote, isSelf, noticePlain, noticeHTML := d.OnCTCP("alice", "VERSION", "")
	assert.Empty(t, emote)
	assert.False(t, isSelf)
	assert.Contains(t, noticePlain, "ignored")
	assert.Contains(t, noticeHTML, "<b>alice</b>")
}

func TestDirectRoom_OnCTCPReply(t *testing.T) {
	n := testDirectNetwork(t, fakeConn{nick: "bridgebot"})
	d := NewDirectRoom(n, "alice")

	noticePlain, noticeHTML := d.OnCTCPReply("alice", "some version string")
	assert.Contains(t, noticePlain, "alice")
	assert.Contains(t, noticePlain, "some version string")
	assert.Contains(t, noticeHTML, "CTCP REPLY")
}

// connFlag is a legacy.Conn fake whose Connected() value the test can
// flip, for exercising the WHOIS command's ConnectionDown path.
type connFlag struct {
	fakeConn
	connected bool
}

func (c connFlag) Connected() bool { return c.connected }

func TestDirectRoom_Commands_WhoisRequiresConnection(t *testing.T) {
	n := testDirectNetwork(t, connFlag{fakeConn: fakeConn{nick: "bridgebot"}, connected: false})
	d := NewDirectRoom(n, "alice")

	reg := d.Commands()
	_, err := reg.Run("WHOIS", "")
	assert.ErrorIs(t, err, commands.ErrNotConnected)
}

func TestDirectRoom_Commands_WhoisSendsWhenConnected(t *testing.T) {
	n := testDirectNetwork(t, connFlag{fakeConn: fakeConn{nick: "bridgebot"}, connected: true})
	d := NewDirectRoom(n, "alice")

	reg := d.Commands()
	notice, err := reg.Run("WHOIS", "")
	assert.NoError(t, err)
	assert.Empty(t, notice, "the WHOIS reply itself arrives asynchronously over the legacy connection")
}
