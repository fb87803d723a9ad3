package state

import (
	"context"
	"html"
	"strings"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/internal/bridgelog"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// EnsureDirectRoom returns the direct room registered for nick,
// creating its fabric room and registering it on first contact.
func (n *NetworkRoom) EnsureDirectRoom(ctx context.Context, nick string) (*DirectRoom, error) {
	if d, ok := n.DirectRoomFor(nick); ok {
		return d, nil
	}

	d := NewDirectRoom(n, nick)
	if n.Client != nil {
		roomID, err := n.Client.CreateRoom(ctx, fabric.RoomCreateParams{
			Name:   nick + " (" + n.Network + ")",
			Invite: []id.UserID{n.Operator, n.Prefix.UserID(n.Network, nick)},
		})
		if err != nil {
			return nil, err
		}
		d.ID = roomID
		d.AddMember(n.Operator, "")
	}

	n.RegisterDirectRoom(d)
	n.RegisterMxRoom(d.ID, d)
	if d.Store != nil {
		if err := d.Save(ctx); err != nil {
			n.SendNotice(d.Name+": "+err.Error(), "")
		}
	}
	return d, nil
}

// HandlePrivmsg routes one inbound legacy PRIVMSG by target: a
// channel name to its channel room, the bridge's own nick to the
// sending peer's direct room, created on first contact.
func (n *NetworkRoom) HandlePrivmsg(ctx context.Context, fromNick, target, line string) {
	if n.Conn == nil || n.Engine == nil {
		return
	}
	if n.Logger != nil {
		n.Logger.Log(bridgelog.WithNetwork(ctx, n.Network), bridgelog.LevelTrace, "legacy privmsg", "from", fromNick, "target", target)
	}

	peer := ""
	switch {
	case strings.EqualFold(target, n.Conn.RealNickname()):
		peer = fromNick
	case strings.EqualFold(fromNick, n.Conn.RealNickname()):
		// echo of our own private message: the room is keyed by the
		// recipient, not by us
		if _, isChannel := n.ChannelRoomFor(target); !isChannel {
			peer = target
		}
	}

	if peer != "" {
		d, err := n.EnsureDirectRoom(ctx, peer)
		if err != nil {
			n.SendNotice("Failed to create room for "+peer+": "+err.Error(), "")
			return
		}
		d.HandlePrivmsg(ctx, fromNick, line)
		return
	}

	if c, ok := n.ChannelRoomFor(target); ok {
		c.HandlePrivmsg(ctx, fromNick, line)
	}
}

// HandlePrivnotice routes one inbound legacy NOTICE. Notices never
// create rooms; a notice from a nick without a direct room is
// surfaced through the network notice channel instead.
func (n *NetworkRoom) HandlePrivnotice(ctx context.Context, fromNick, target, line string) {
	if n.Conn == nil || n.Engine == nil {
		return
	}

	if !strings.EqualFold(target, n.Conn.RealNickname()) {
		if c, ok := n.ChannelRoomFor(target); ok {
			c.HandleNotice(ctx, fromNick, line)
		}
		return
	}

	if d, ok := n.DirectRoomFor(fromNick); ok {
		d.HandleNotice(ctx, fromNick, line)
		return
	}

	plain, formatted := wire.ParseLegacy(line, nil)
	f := ""
	if formatted != nil {
		f = *formatted
	}
	n.SendNotice(fromNick+": "+plain, f)
}

// HandleCTCP routes an inbound CTCP request addressed to the bridge's
// own nick into the peer's direct room.
func (n *NetworkRoom) HandleCTCP(ctx context.Context, fromNick, target, command, arg string) {
	if n.Conn == nil || n.Engine == nil || !strings.EqualFold(target, n.Conn.RealNickname()) {
		return
	}
	d, err := n.EnsureDirectRoom(ctx, fromNick)
	if err != nil {
		n.SendNotice("Failed to create room for "+fromNick+": "+err.Error(), "")
		return
	}
	d.HandleCTCP(ctx, fromNick, command, arg)
}

// HandleCTCPReply routes an inbound CTCP reply into the peer's direct
// room, if one exists; replies never create rooms.
func (n *NetworkRoom) HandleCTCPReply(ctx context.Context, fromNick, target, body string) {
	if n.Conn == nil || n.Engine == nil || !strings.EqualFold(target, n.Conn.RealNickname()) {
		return
	}
	if d, ok := n.DirectRoomFor(fromNick); ok {
		d.HandleCTCPReply(ctx, fromNick, body)
	}
}

// HandlePrivmsg posts one inbound private message into the room,
// re-inviting the operator if they had left and refreshing the peer
// puppet's displayname when drift is detected.
func (d *DirectRoom) HandlePrivmsg(ctx context.Context, fromNick, line string) {
	n := d.Network
	puppetID := n.Prefix.UserID(n.Network, fromNick)

	send := func(plain, formatted, fallback string) {
		d.Dispatch(ctx, func(ctx context.Context) {
			if _, err := n.Engine.PostMessage(ctx, d.ID, puppetID, plain, formatted); err != nil {
				n.SendNotice(d.Name+": "+err.Error(), "")
			}
		})
	}
	sendSelf := func(plain, formatted string) {
		d.Dispatch(ctx, func(ctx context.Context) {
			_, _ = n.Engine.PostMessage(ctx, d.ID, "", plain, formatted)
		})
	}

	needsInvite, needsRefresh := d.OnPrivmsg(fromNick, line, send, sendSelf)

	if needsInvite && n.Client != nil {
		if err := n.Client.Invite(ctx, d.ID, d.Operator); err == nil {
			d.AddMember(d.Operator, "")
		}
	}
	if needsRefresh {
		n.Displaynames.Set(puppetID, fromNick)
		d.SetDisplayname(puppetID, fromNick)
	}
}

// HandleNotice posts one inbound private notice into the room, or
// upward through the network notice channel when the operator has
// left.
func (d *DirectRoom) HandleNotice(ctx context.Context, fromNick, line string) {
	n := d.Network
	plain, formatted, selfEcho, nonMember := d.OnPrivnotice(fromNick, line)

	switch {
	case selfEcho:
		d.Dispatch(ctx, func(ctx context.Context) {
			_, _ = n.Engine.PostNotice(ctx, d.ID, "", "You noticed: "+plain, "", "")
		})
	case nonMember:
		fallback := "<b>Notice from " + html.EscapeString(fromNick) + "</b>: " + html.EscapeString(plain)
		n.SendNotice(d.Name+": "+plain, fallback)
	default:
		puppetID := n.Prefix.UserID(n.Network, fromNick)
		d.Dispatch(ctx, func(ctx context.Context) {
			if _, err := n.Engine.PostNotice(ctx, d.ID, puppetID, plain, formatted, ""); err != nil {
				n.SendNotice(d.Name+": "+err.Error(), "")
			}
		})
	}
}

// HandleCTCP posts the fabric-side rendition of an inbound CTCP
// request: an emote for ACTION, an ignored-marker notice otherwise.
func (d *DirectRoom) HandleCTCP(ctx context.Context, fromNick, command, arg string) {
	n := d.Network
	emote, selfEmote, noticePlain, noticeHTML := d.OnCTCP(fromNick, command, arg)

	if noticePlain != "" {
		d.Dispatch(ctx, func(ctx context.Context) {
			_, _ = n.Engine.PostNotice(ctx, d.ID, "", noticePlain, noticeHTML, "")
		})
		return
	}
	if emote == "" {
		return
	}

	asUser := n.Prefix.UserID(n.Network, fromNick)
	if selfEmote {
		asUser = ""
	}
	d.Dispatch(ctx, func(ctx context.Context) {
		if _, err := n.Engine.PostEmote(ctx, d.ID, asUser, emote, ""); err != nil {
			n.SendNotice(d.Name+": "+err.Error(), "")
		}
	})
}

// HandleCTCPReply posts the ignored-marker notice for an inbound CTCP
// reply.
func (d *DirectRoom) HandleCTCPReply(ctx context.Context, fromNick, body string) {
	n := d.Network
	noticePlain, noticeHTML := d.OnCTCPReply(fromNick, body)
	d.Dispatch(ctx, func(ctx context.Context) {
		_, _ = n.Engine.PostNotice(ctx, d.ID, "", noticePlain, noticeHTML, "")
	})
}

// HandlePrivmsg posts one inbound channel message as the sending
// nick's puppet. The bridge's own lines are dropped; whatever the
// operator said is already visible on the fabric side.
func (c *ChannelRoom) HandlePrivmsg(ctx context.Context, fromNick, line string) {
	n := c.Network
	if strings.EqualFold(fromNick, n.Conn.RealNickname()) {
		return
	}

	plain, formatted := wire.ParseLegacy(line, c.Pills())
	f := ""
	if formatted != nil {
		f = *formatted
	}
	puppetID := n.Prefix.UserID(n.Network, fromNick)
	c.Dispatch(ctx, func(ctx context.Context) {
		if _, err := n.Engine.PostMessage(ctx, c.ID, puppetID, plain, f); err != nil {
			n.SendNotice(c.Name+": "+err.Error(), "")
		}
	})
}

// HandleNotice posts one inbound channel notice as the sending nick's
// puppet.
func (c *ChannelRoom) HandleNotice(ctx context.Context, fromNick, line string) {
	n := c.Network
	if strings.EqualFold(fromNick, n.Conn.RealNickname()) {
		return
	}

	plain, formatted := wire.ParseLegacy(line, c.Pills())
	f := ""
	if formatted != nil {
		f = *formatted
	}
	puppetID := n.Prefix.UserID(n.Network, fromNick)
	c.Dispatch(ctx, func(ctx context.Context) {
		if _, err := n.Engine.PostNotice(ctx, c.ID, puppetID, plain, f, ""); err != nil {
			n.SendNotice(c.Name+": "+err.Error(), "")
		}
	})
}
