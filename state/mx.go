package state

import (
	"context"
	"errors"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/commands"
	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/internal/bridgelog"
	"github.com/mk6i/matrix-irc-bridge/relay"
)

var (
	_ MxRoomHandler = (*DirectRoom)(nil)
	_ MxRoomHandler = (*ChannelRoom)(nil)
	_ MxRoomHandler = (*PlumbedRoom)(nil)
)

// PostNotice delivers text to the operator: forwarded upward through
// the owning network's notice channel when the room's policy says so,
// posted into the room as the bridge itself otherwise.
func (r *Room) PostNotice(ctx context.Context, text string) {
	if r.SendNotice(text, "", "", false) {
		return
	}
	if r.Client == nil {
		return
	}
	_, _ = r.Client.SendMessage(ctx, r.ID, "", event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	})
}

// sendable builds the legacy-side dispatch target for one relayed
// event: every send passes the network's flood-control limiter first,
// and reactions land on the source event in r.
func (n *NetworkRoom) sendable(ctx context.Context, r *Room, evt *fabric.Event, target string, send func(target, text string)) relay.Sendable {
	return relay.Sendable{
		Send: func(line string) {
			if err := n.Throttle(ctx); err != nil {
				return
			}
			send(target, line)
		},
		React: func(key string) {
			_ = r.React(ctx, evt.ID, key)
		},
		Target: target,
		Nick:   n.Conn.RealNickname(),
		User:   n.Conn.Username(),
		Host:   n.Conn.RealHost(),
	}
}

// relayMessage runs one fabric message event through the relay engine
// out to target. A malformed event is logged and dropped; any other
// failure is surfaced as an operator notice instead of escaping the
// handler.
func (n *NetworkRoom) relayMessage(ctx context.Context, r *Room, evt *fabric.Event, cfg relay.RoomConfig, prefix, target string, send func(target, text string)) {
	if n.Engine == nil {
		return
	}
	s := n.sendable(ctx, r, evt, target, send)
	if err := n.Engine.SendMessage(ctx, r, r.ID, evt, cfg, prefix, s); err != nil {
		if errors.Is(err, relay.ErrProtocolInvariant) {
			if n.Logger != nil {
				lctx := bridgelog.WithRoom(bridgelog.WithNetwork(ctx, n.Network), string(r.ID))
				n.Logger.WarnContext(lctx, "dropping event with unexpected shape", "event_id", string(evt.ID), "err", err)
			}
			return
		}
		r.PostNotice(ctx, err.Error())
	}
}

// relayMedia posts the event's media URL to target as a single line,
// then persists the grown media log through save.
func (n *NetworkRoom) relayMedia(ctx context.Context, r *Room, evt *fabric.Event, prefix, target string, save func(context.Context) error) {
	if n.Engine == nil {
		return
	}
	s := n.sendable(ctx, r, evt, target, n.Conn.Privmsg)
	if err := n.Engine.SendMedia(ctx, r, evt, prefix, s); err != nil {
		r.PostNotice(ctx, err.Error())
		return
	}
	if save != nil {
		if err := save(ctx); err != nil {
			r.PostNotice(ctx, err.Error())
		}
	}
}

// OnMxMessage relays the operator's fabric message out to the peer
// nickname. A text message addressed to the bridge bot by name is
// routed to the room's command surface instead of the wire.
func (d *DirectRoom) OnMxMessage(ctx context.Context, evt *fabric.Event) {
	if evt.Sender != d.Operator {
		return
	}
	n := d.Network
	if n == nil || n.Conn == nil || !n.Conn.Connected() {
		d.PostNotice(ctx, "Not connected to network.")
		return
	}

	switch evt.Content.MsgType {
	case event.MsgEmote:
		n.relayMessage(ctx, d.Room, evt, relay.RoomConfig{}, "", d.Nick, n.Conn.Action)
	case event.MsgImage, event.MsgFile, event.MsgAudio, event.MsgVideo:
		n.relayMedia(ctx, d.Room, evt, "", d.Nick, d.saveIfStored)
	case event.MsgText:
		if handled, notice := commands.Dispatch(d.Commands(), evt.Content.Body, n.BotLocalpart()); handled {
			if notice != "" {
				d.PostNotice(ctx, notice)
			}
			return
		}
		n.relayMessage(ctx, d.Room, evt, relay.RoomConfig{}, "", d.Nick, n.Conn.Privmsg)
	}

	_ = d.PostReceipt(ctx, evt.ID)
}

// OnMxRedaction quarantines media logged for the redacted event, if
// any, reporting the outcome through the network notice channel.
func (d *DirectRoom) OnMxRedaction(ctx context.Context, evt *fabric.Event) {
	n := d.Network
	if n == nil || n.Engine == nil {
		return
	}
	n.Engine.HandleRedaction(ctx, d.Room, evt.Redacts, func(text string) {
		n.SendNotice(d.Name+": "+text, "")
	})
}

func (d *DirectRoom) saveIfStored(ctx context.Context) error {
	if d.Store == nil {
		return nil
	}
	return d.Save(ctx)
}

// OnMxMessage relays the operator's fabric message into the legacy
// channel. Only the operator speaks through a channel room; puppet
// members are the bridge's own reflections of legacy users.
func (c *ChannelRoom) OnMxMessage(ctx context.Context, evt *fabric.Event) {
	if evt.Sender != c.Operator {
		return
	}
	n := c.Network
	if n == nil || n.Conn == nil || !n.Conn.Connected() {
		c.PostNotice(ctx, "Not connected to network.")
		return
	}

	switch evt.Content.MsgType {
	case event.MsgEmote:
		n.relayMessage(ctx, c.Room, evt, relay.RoomConfig{}, "", c.ChannelName, n.Conn.Action)
	case event.MsgImage, event.MsgFile, event.MsgAudio, event.MsgVideo:
		n.relayMedia(ctx, c.Room, evt, "", c.ChannelName, c.saveIfStored)
	case event.MsgText:
		n.relayMessage(ctx, c.Room, evt, relay.RoomConfig{}, "", c.ChannelName, n.Conn.Privmsg)
	}

	_ = c.PostReceipt(ctx, evt.ID)
}

// OnMxRedaction quarantines media logged for the redacted event, if
// any, reporting the outcome through the network notice channel.
func (c *ChannelRoom) OnMxRedaction(ctx context.Context, evt *fabric.Event) {
	n := c.Network
	if n == nil || n.Engine == nil {
		return
	}
	n.Engine.HandleRedaction(ctx, c.Room, evt.Redacts, func(text string) {
		n.SendNotice(c.Name+": "+text, "")
	})
}

func (c *ChannelRoom) saveIfStored(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	return c.Save(ctx)
}

// OnTopic mirrors a legacy TOPIC change into the fabric room's topic
// state.
func (c *ChannelRoom) OnTopic(ctx context.Context, topic string) {
	if c.Client == nil {
		return
	}
	if err := c.Client.SetTopic(ctx, c.ID, topic); err != nil {
		c.PostNotice(ctx, "Failed to set topic: "+err.Error())
	}
}

// OnMxMessage relays any fabric member's message into the plumbed
// legacy channel, rendered under that member's sender prefix. Events
// from the bridge itself or one of its own puppets are dropped so a
// relayed line can never loop back out.
func (p *PlumbedRoom) OnMxMessage(ctx context.Context, evt *fabric.Event) {
	n := p.Network
	if n == nil || n.Conn == nil || !n.Conn.Connected() {
		return
	}
	if p.IsSelfOrPuppetEcho(evt.Sender, n.BotUserID()) {
		return
	}

	sender := p.RenderSender(evt.Sender)
	cfg := relay.RoomConfig{MaxLines: p.MaxLines, UsePastebin: p.UsePastebin}

	switch evt.Content.MsgType {
	case event.MsgImage, event.MsgFile, event.MsgAudio, event.MsgVideo:
		n.relayMedia(ctx, p.Room, evt, "<"+sender+"> ", p.ChannelName, p.saveIfStored)
	case event.MsgEmote:
		n.relayMessage(ctx, p.Room, evt, cfg, sender+" ", p.ChannelName, n.Conn.Action)
	case event.MsgText:
		n.relayMessage(ctx, p.Room, evt, cfg, "<"+sender+"> ", p.ChannelName, n.Conn.Privmsg)
	case event.MsgNotice:
		if p.AllowNotice {
			n.relayMessage(ctx, p.Room, evt, cfg, "<"+sender+"> ", p.ChannelName, n.Conn.Notice)
		}
	}

	_ = p.PostReceipt(ctx, evt.ID)
}

func (p *PlumbedRoom) saveIfStored(ctx context.Context) error {
	if p.Store == nil {
		return nil
	}
	return p.Save(ctx)
}

// OnTopic never touches the plumbed room's topic state; the change is
// surfaced as a notice instead, since the room belongs to its fabric
// members rather than to the bridge.
func (p *PlumbedRoom) OnTopic(ctx context.Context, topic string) {
	p.PostNotice(ctx, "New topic is: '"+topic+"'")
}

// OnMxJoin records a fabric member joining the room.
func (c *ChannelRoom) OnMxJoin(userID id.UserID, displayname string) {
	c.AddMember(userID, displayname)
}

// OnMxLeave records a fabric member leaving. The operator leaving
// destroys the room: its registrations and persisted entry go with
// it.
func (c *ChannelRoom) OnMxLeave(ctx context.Context, userID id.UserID) (destroyed bool) {
	c.RemoveMember(userID)
	if userID != c.Operator {
		return false
	}
	c.Cleanup()
	if c.Store != nil {
		_ = c.Store.DeleteRoom(ctx, c.Operator, c.ID)
	}
	return true
}

// OnMxLeave destroys the room when the operator leaves; a direct room
// without its operator has nobody to talk to.
func (d *DirectRoom) OnMxLeave(ctx context.Context, userID id.UserID) (destroyed bool) {
	d.RemoveMember(userID)
	if userID != d.Operator {
		return false
	}
	d.Cleanup()
	if d.Store != nil {
		_ = d.Store.DeleteRoom(ctx, d.Operator, d.ID)
	}
	return true
}

// OnMxLeave destroys a plumbed room only when the bridge itself is
// removed (kicked or left); ordinary members, the operator included,
// come and go without unplumbing the channel.
func (p *PlumbedRoom) OnMxLeave(ctx context.Context, userID id.UserID) (destroyed bool) {
	p.RemoveMember(userID)
	if userID != p.Network.BotUserID() {
		return false
	}
	p.Cleanup()
	if p.Store != nil {
		_ = p.Store.DeleteRoom(ctx, p.Operator, p.ID)
	}
	return true
}
