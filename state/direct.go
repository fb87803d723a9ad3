package state

import (
	"context"
	"html"
	"strings"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/commands"
	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// DirectRoom is a one-to-one room between the operator and a single
// legacy nickname. Direct rooms never truncate and never forward
// their notices upward by default.
type DirectRoom struct {
	*Room

	Network *NetworkRoom
	Nick    string // current legacy nickname of the peer, lowercase key lives on NetworkRoom
}

// DirectConfig is the persisted shape of a DirectRoom.
type DirectConfig struct {
	Name    string
	Network string
	Media   []MediaLogEntry
}

// NewDirectRoom constructs a DirectRoom for nick on network, not yet
// backed by a fabric room id.
func NewDirectRoom(network *NetworkRoom, nick string) *DirectRoom {
	d := &DirectRoom{
		Room:    NewRoom(network.Operator),
		Network: network,
		Nick:    nick,
	}
	d.Name = nick
	d.Store = network.Store
	d.Client = network.Client
	d.Room.SetNotifier(func(text, formatted string) {
		network.SendNotice(text, formatted)
	})
	return d
}

// FromConfig restores the room's persisted fields, rejecting a config
// that lost its mandatory identity keys.
func (d *DirectRoom) FromConfig(cfg DirectConfig) error {
	if cfg.Name == "" {
		return errMissingConfigKey("name")
	}
	if cfg.Network == "" {
		return errMissingConfigKey("network")
	}
	d.Nick = cfg.Name
	d.Name = cfg.Name
	d.MediaLog = truncatedMedia(cfg.Media)
	return nil
}

// ToConfig returns the room's persisted shape. It round-trips through
// FromConfig unchanged.
func (d *DirectRoom) ToConfig() DirectConfig {
	return DirectConfig{
		Name:    d.Nick,
		Network: d.Network.Network,
		Media:   truncatedMedia(d.MediaSnapshot()),
	}
}

// IsValid extends Room.IsValid with the fields a direct room cannot
// exist without.
func (d *DirectRoom) IsValid() bool {
	return d.Nick != "" && d.Network != nil && d.Room.IsValid()
}

// Cleanup removes the room's NetworkRoom registrations and stops its
// outbound queue.
func (d *DirectRoom) Cleanup() {
	d.Network.UnregisterDirectRoom(d.Nick)
	d.Network.UnregisterMxRoom(d.ID)
	d.CloseOutbox()
}

// Save idempotently merges this room's current config into the
// operator's persisted blob.
func (d *DirectRoom) Save(ctx context.Context) error {
	entry, err := persist.NewRoomEntry("direct", d.ToConfig())
	if err != nil {
		return err
	}
	return d.Store.SaveRoom(ctx, d.Operator, d.ID, entry)
}

// Pills builds this room's mention-candidate map: the operator's own
// nick plus the peer puppet.
func (d *DirectRoom) Pills() map[string]wire.Pill {
	ownName, _ := d.Displayname(d.Operator)
	members := map[id.UserID]string{}
	peerID := d.Network.Prefix.UserID(d.Network.Network, d.Nick)
	if name, ok := d.Displayname(peerID); ok {
		members[peerID] = name
	} else {
		members[peerID] = d.Nick
	}
	return d.Network.Pills(d.Network.Conn.RealNickname(), ownName, members, false)
}

// OnPrivmsg handles one inbound legacy private message. A self-echo
// (the bridge's own nick talking) becomes a local "You said: " message
// instead of a relay; otherwise the line is parsed and handed to send
// for relaying as the peer puppet. needsInvite reports that the
// operator has left and should be re-invited; needsRefresh reports
// displayname drift requiring an asynchronous lazy refresh.
func (d *DirectRoom) OnPrivmsg(nick, line string, send func(plain, formatted, fallback string), sendSelf func(plain, formatted string)) (needsInvite, needsRefresh bool) {
	if d.Network == nil {
		return false, false
	}

	plain, formatted := wire.ParseLegacy(line, d.Pills())
	formattedStr := ""
	if formatted != nil {
		formattedStr = *formatted
	}

	if strings.EqualFold(nick, d.Network.Conn.RealNickname()) {
		self := "You said: " + plain
		selfFmt := ""
		if formatted != nil {
			if sanitized, ok := wire.SanitizeFragment(formattedStr); ok {
				selfFmt = "You said: " + sanitized
			}
		}
		sendSelf(self, selfFmt)
		return false, false
	}

	fallback := "<b>Message from " + html.EscapeString(nick) + "</b>: " + html.EscapeString(plain)
	send(plain, formattedStr, fallback)

	needsInvite = !d.InRoom(d.Operator)
	needsRefresh = !d.Network.Displaynames.IsCached(d.Network.Prefix.UserID(d.Network.Network, nick), nick)
	return needsInvite, needsRefresh
}

// OnPrivnotice classifies one inbound legacy notice: a self-echo, a
// notice for a room the operator has left (surfaced via the network
// notice channel instead), or an ordinary notice to relay.
func (d *DirectRoom) OnPrivnotice(nick, line string) (plain, formatted string, selfEcho, nonMember bool) {
	p, f := wire.ParseLegacy(line, nil)
	fStr := ""
	if f != nil {
		fStr = *f
	}

	if strings.EqualFold(nick, d.Network.Conn.RealNickname()) {
		return p, fStr, true, false
	}

	if !d.InRoom(d.Operator) {
		return p, fStr, false, true
	}

	return p, fStr, false, false
}

// OnCTCP turns an incoming CTCP ACTION into a fabric emote (self-echo
// prefixed "(you) "); any other CTCP request is surfaced as an
// ignored-but-visible notice rather than silently dropped.
func (d *DirectRoom) OnCTCP(nick, command, arg string) (emote string, selfEmote bool, noticePlain, noticeHTML string) {
	if strings.EqualFold(command, "ACTION") && arg != "" {
		plain, _ := wire.ParseLegacy(arg, nil)
		if strings.EqualFold(nick, d.Network.Conn.RealNickname()) {
			return "(you) " + plain, true, "", ""
		}
		return plain, false, "", ""
	}
	plain, _ := wire.ParseLegacy(strings.TrimSpace(command+" "+arg), nil)
	noticePlain = nick + " requested CTCP " + plain + " (ignored)"
	noticeHTML = "<b>" + html.EscapeString(nick) + "</b> requested <b>CTCP " + html.EscapeString(plain) + "</b> (ignored)"
	return "", false, noticePlain, noticeHTML
}

// OnCTCPReply surfaces an incoming CTCP reply as an
// ignored-but-visible notice.
func (d *DirectRoom) OnCTCPReply(nick, body string) (noticePlain, noticeHTML string) {
	plain, _ := wire.ParseLegacy(body, nil)
	noticePlain = nick + " sent CTCP REPLY " + plain + " (ignored)"
	noticeHTML = "<b>" + html.EscapeString(nick) + "</b> sent <b>CTCP REPLY " + html.EscapeString(plain) + "</b> (ignored)"
	return noticePlain, noticeHTML
}

// Commands builds the runtime command surface for a direct room:
// WHOIS, usable only while the legacy connection is up.
func (d *DirectRoom) Commands() *commands.Registry {
	reg := commands.NewRegistry()
	reg.RegisterAction(commands.ActionCommand{
		Name: "WHOIS",
		Help: "WHOIS the other user",
		Run: func(arg string) (string, error) {
			if d.Network == nil || d.Network.Conn == nil || !d.Network.Conn.Connected() {
				return "", commands.ErrNotConnected
			}
			d.Network.Conn.Whois(d.Nick + " " + d.Nick)
			return "", nil
		},
	})
	return reg
}
