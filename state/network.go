package state

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/legacy"
	"github.com/mk6i/matrix-irc-bridge/puppet"
	"github.com/mk6i/matrix-irc-bridge/relay"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// outboundRate and outboundBurst bound how fast a NetworkRoom drains
// its legacy connection; most networks disconnect clients that send
// faster than roughly one line per second sustained.
const (
	outboundRate  = rate.Limit(1)
	outboundBurst = 4
)

// PillsPolicy controls mention-replacement eligibility for a network.
type PillsPolicy struct {
	MinLength int
	Ignore    []string
}

func (p PillsPolicy) ignored(nick string) bool {
	lnick := strings.ToLower(nick)
	for _, ig := range p.Ignore {
		if strings.ToLower(ig) == lnick {
			return true
		}
	}
	return false
}

// NetworkRoom owns the legacy connection for one network and the set
// of DirectRoom/ChannelRoom children registered to it by nick or
// channel name.
type NetworkRoom struct {
	*Room

	Network string

	Conn        legacy.Conn
	Client      fabric.Client
	Prefix      puppet.Prefix
	PillsConfig PillsPolicy

	// BotUser is the fabric account the bridge itself posts as (the
	// appservice bot), fixed for the whole process and distinct from
	// every puppet id. Set by the bootstrap from config.
	BotUser id.UserID

	// Engine dispatches the relay decisions every fabric/legacy event
	// handler calls into. Shared across all rooms; set by the
	// bootstrap.
	Engine *relay.Engine

	Displaynames *puppet.DisplaynameCache

	Logger *slog.Logger

	limiter *rate.Limiter

	mu       sync.Mutex
	directs  map[string]*DirectRoom  // keyed by lowercased nick
	channels map[string]*ChannelRoom // keyed by lowercased channel name
	mxRooms  map[id.RoomID]MxRoomHandler

	// NoticeFunc delivers a notice line to the operator's control room;
	// set by the bootstrap, not persisted.
	NoticeFunc func(text, formatted string)
}

// NewNetworkRoom builds a NetworkRoom and wires its own SendNotice to
// NoticeFunc (a NetworkRoom is its own top of the forwarding chain).
func NewNetworkRoom(operator id.UserID, network string, client fabric.Client, conn legacy.Conn, prefix puppet.Prefix) *NetworkRoom {
	n := &NetworkRoom{
		Room:         NewRoom(operator),
		Network:      network,
		Conn:         conn,
		Client:       client,
		Prefix:       prefix,
		Displaynames: puppet.NewDisplaynameCache(),
		limiter:      rate.NewLimiter(outboundRate, outboundBurst),
		directs:      map[string]*DirectRoom{},
		channels:     map[string]*ChannelRoom{},
		mxRooms:      map[id.RoomID]MxRoomHandler{},
	}
	n.Name = network
	n.Room.Client = client
	n.Room.SetNotifier(func(text, formatted string) {
		if n.NoticeFunc != nil {
			n.NoticeFunc(text, formatted)
		}
	})
	return n
}

// SendNotice posts a notice through the network's own notice channel,
// bypassing the forward/force-forward logic that only applies to
// child rooms.
func (n *NetworkRoom) SendNotice(text, formatted string) {
	if n.NoticeFunc != nil {
		n.NoticeFunc(text, formatted)
	}
}

// Throttle blocks until the outbound legacy rate limiter admits the
// next send. Callers invoke it immediately before each
// Conn.Privmsg/Notice/Action call.
func (n *NetworkRoom) Throttle(ctx context.Context) error {
	return n.limiter.Wait(ctx)
}

// DirectRoomFor returns the DirectRoom registered for nick, if any.
func (n *NetworkRoom) DirectRoomFor(nick string) (*DirectRoom, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.directs[strings.ToLower(nick)]
	return d, ok
}

// RegisterDirectRoom records d under its peer nick, replacing any
// earlier registration for that nick (a rename updates the key via
// RenameDirectRoom instead).
func (n *NetworkRoom) RegisterDirectRoom(d *DirectRoom) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.directs[strings.ToLower(d.Nick)] = d
}

// UnregisterDirectRoom removes d's registration, called from its
// Cleanup.
func (n *NetworkRoom) UnregisterDirectRoom(nick string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.directs, strings.ToLower(nick))
}

// RenameDirectRoom moves a DirectRoom's registration to follow a
// legacy nick change.
func (n *NetworkRoom) RenameDirectRoom(oldNick, newNick string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.directs[strings.ToLower(oldNick)]
	if !ok {
		return
	}
	delete(n.directs, strings.ToLower(oldNick))
	n.directs[strings.ToLower(newNick)] = d
}

// ChannelRoomFor returns the ChannelRoom registered for name, if any.
func (n *NetworkRoom) ChannelRoomFor(name string) (*ChannelRoom, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.channels[strings.ToLower(name)]
	return c, ok
}

// RegisterChannelRoom records c under its channel name.
func (n *NetworkRoom) RegisterChannelRoom(c *ChannelRoom) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[strings.ToLower(c.ChannelName)] = c
}

// UnregisterChannelRoom removes c's registration.
func (n *NetworkRoom) UnregisterChannelRoom(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.channels, strings.ToLower(name))
}

// AllDirectRooms returns a snapshot of the registered direct rooms.
func (n *NetworkRoom) AllDirectRooms() []*DirectRoom {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*DirectRoom, 0, len(n.directs))
	for _, d := range n.directs {
		out = append(out, d)
	}
	return out
}

// AllChannelRooms returns a snapshot of the registered channel rooms.
func (n *NetworkRoom) AllChannelRooms() []*ChannelRoom {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*ChannelRoom, 0, len(n.channels))
	for _, c := range n.channels {
		out = append(out, c)
	}
	return out
}

// RegisterMxRoom records h as the fabric-event handler for roomID,
// called once a room has a fabric room id to dispatch for.
func (n *NetworkRoom) RegisterMxRoom(roomID id.RoomID, h MxRoomHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mxRooms[roomID] = h
}

// UnregisterMxRoom removes roomID's handler registration, called from
// the owning room's Cleanup.
func (n *NetworkRoom) UnregisterMxRoom(roomID id.RoomID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.mxRooms, roomID)
}

// MxRoomFor returns the handler registered for roomID, if any; the
// sync dispatch loop uses this to route an inbound fabric event to
// its owning room.
func (n *NetworkRoom) MxRoomFor(roomID id.RoomID) (MxRoomHandler, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.mxRooms[roomID]
	return h, ok
}

// BotUserID is the fabric identity the bridge itself posts as. It is
// the configured appservice bot account, never a puppet: Client
// methods called with asUser "" act as this account, so its events
// must be recognized for loop prevention.
func (n *NetworkRoom) BotUserID() id.UserID {
	return n.BotUser
}

// BotLocalpart is the bot account's localpart, the name a fabric
// message addresses commands to.
func (n *NetworkRoom) BotLocalpart() string {
	local, _, _ := strings.Cut(strings.TrimPrefix(string(n.BotUser), "@"), ":")
	return local
}

// IsPuppetEcho reports whether sender is either the bridge bot itself
// or one of its own puppets, i.e. a fabric event that originated from
// this bridge's own legacy relay and must not be relayed back out.
func (n *NetworkRoom) IsPuppetEcho(sender id.UserID) bool {
	if sender == n.BotUserID() {
		return true
	}
	return n.Prefix.IsPuppet(sender)
}

// Pills builds the lowercased-nick -> candidate pill mapping for a
// room owned by this network. selfNick is the bridge's own registered
// nickname; ownDisplayname is the operator's known displayname on the
// room (empty if unknown); members lists every other member alongside
// its displayname. excludeSelf is set by plumbed rooms to drop the
// bridge's own nick from the result.
func (n *NetworkRoom) Pills(selfNick, ownDisplayname string, members map[id.UserID]string, excludeSelf bool) map[string]wire.Pill {
	if n.PillsConfig.MinLength < 1 {
		return nil
	}
	out := map[string]wire.Pill{}

	lnick := strings.ToLower(selfNick)
	if !excludeSelf && ownDisplayname != "" && len(lnick) >= n.PillsConfig.MinLength && !n.PillsConfig.ignored(selfNick) {
		out[lnick] = wire.Pill{UserID: n.Prefix.UserID(n.Network, selfNick), Displayname: ownDisplayname}
	}

	for userID, displayname := range members {
		if !n.Prefix.IsPuppet(userID) {
			continue
		}
		nick := displayname
		ln := strings.ToLower(nick)
		if len(ln) < n.PillsConfig.MinLength || n.PillsConfig.ignored(nick) {
			continue
		}
		out[ln] = wire.Pill{UserID: userID, Displayname: displayname}
	}

	return out
}
