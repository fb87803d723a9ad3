package state

import (
	"context"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// ChannelRoom mirrors a legacy channel's membership, topic and
// nick/join/part/kick events into a fabric room.
type ChannelRoom struct {
	*Room

	Network     *NetworkRoom
	ChannelName string
	Key         string
	Joined      bool

	// excludeSelfPills drops the bridge's own nick from the mention
	// candidates; set for plumbed rooms, where pillifying the bridge
	// itself would ping the whole room.
	excludeSelfPills bool
}

// ChannelConfig is the persisted shape of a ChannelRoom.
type ChannelConfig struct {
	Name    string
	Network string
	Key     string
	Media   []MediaLogEntry
}

// NewChannelRoom constructs a ChannelRoom for name on network.
func NewChannelRoom(network *NetworkRoom, name string) *ChannelRoom {
	c := &ChannelRoom{
		Room:        NewRoom(network.Operator),
		Network:     network,
		ChannelName: name,
	}
	c.Name = name
	c.Store = network.Store
	c.Client = network.Client
	c.Room.SetNotifier(func(text, formatted string) {
		network.SendNotice(text, formatted)
	})
	return c
}

// FromConfig restores the room's persisted fields, rejecting a config
// that lost its mandatory identity keys.
func (c *ChannelRoom) FromConfig(cfg ChannelConfig) error {
	if cfg.Name == "" {
		return errMissingConfigKey("name")
	}
	if cfg.Network == "" {
		return errMissingConfigKey("network")
	}
	c.ChannelName = cfg.Name
	c.Name = cfg.Name
	c.Key = cfg.Key
	c.MediaLog = truncatedMedia(cfg.Media)
	return nil
}

// ToConfig returns the room's persisted shape. It round-trips through
// FromConfig unchanged.
func (c *ChannelRoom) ToConfig() ChannelConfig {
	return ChannelConfig{
		Name:    c.ChannelName,
		Network: c.Network.Network,
		Key:     c.Key,
		Media:   truncatedMedia(c.MediaSnapshot()),
	}
}

// IsValid extends Room.IsValid with the fields a channel room cannot
// exist without.
func (c *ChannelRoom) IsValid() bool {
	return c.ChannelName != "" && c.Network != nil && c.Room.IsValid()
}

// Cleanup removes the room's NetworkRoom registrations and stops its
// outbound queue.
func (c *ChannelRoom) Cleanup() {
	c.Network.UnregisterChannelRoom(c.ChannelName)
	c.Network.UnregisterMxRoom(c.ID)
	c.CloseOutbox()
}

// Save idempotently merges this room's current config into the
// operator's persisted blob.
func (c *ChannelRoom) Save(ctx context.Context) error {
	entry, err := persist.NewRoomEntry("channel", c.ToConfig())
	if err != nil {
		return err
	}
	return c.Store.SaveRoom(ctx, c.Operator, c.ID, entry)
}

// OnJoin records a legacy JOIN as fabric membership, puppeting the
// joining nick.
func (c *ChannelRoom) OnJoin(nick string) id.UserID {
	puppetID := c.Network.Prefix.UserID(c.Network.Network, nick)
	c.AddMember(puppetID, nick)
	return puppetID
}

// OnPart records a legacy PART/KICK/QUIT as fabric membership loss.
func (c *ChannelRoom) OnPart(nick string) id.UserID {
	puppetID := c.Network.Prefix.UserID(c.Network.Network, nick)
	c.RemoveMember(puppetID)
	return puppetID
}

// OnNickChange moves a puppet's membership to its new nick, keeping
// the displayname cache in sync.
func (c *ChannelRoom) OnNickChange(oldNick, newNick string) (oldID, newID id.UserID) {
	oldID = c.Network.Prefix.UserID(c.Network.Network, oldNick)
	newID = c.Network.Prefix.UserID(c.Network.Network, newNick)
	c.RemoveMember(oldID)
	c.AddMember(newID, newNick)
	return oldID, newID
}

// Pills builds this room's mention-candidate map from its current
// membership.
func (c *ChannelRoom) Pills() map[string]wire.Pill {
	ownName, _ := c.Displayname(c.Operator)
	members := map[id.UserID]string{}
	for _, userID := range c.MembersSnapshot() {
		if name, ok := c.Displayname(userID); ok {
			members[userID] = name
		}
	}
	return c.Network.Pills(c.Network.Conn.RealNickname(), ownName, members, c.excludeSelfPills)
}
