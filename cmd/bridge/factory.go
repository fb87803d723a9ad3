// Command bridge is the process bootstrap for one operator's bridge
// instance. Wiring a concrete fabric API client and legacy network
// connection is left to the deployment; this package only owns what
// the core itself is responsible for: loading config, building the
// shared collaborators (logger, persistence store, relay engine),
// reconstructing every persisted room on startup, and running the
// fabric sync loop that routes events to those rooms until shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/config"
	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/legacy"
	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/puppet"
	"github.com/mk6i/matrix-irc-bridge/relay"
	"github.com/mk6i/matrix-irc-bridge/state"
)

// NetworkDialer opens the legacy connection for one configured
// network. The connection object itself (TCP socket, line parser) is
// an external collaborator; Container only ever calls through the
// legacy.Conn interface it returns.
type NetworkDialer func(ctx context.Context, network string) (legacy.Conn, error)

// Container groups the collaborators shared across every room the
// operator's bridge instance owns.
type Container struct {
	cfg    config.Config
	logger *slog.Logger
	client fabric.Client
	store  *persist.Store
	engine *relay.Engine
	prefix puppet.Prefix
	dial   NetworkDialer

	mu       sync.Mutex
	networks map[string]*state.NetworkRoom
}

// MakeCommonDeps builds the Container's shared collaborators from
// config plus the externally-supplied fabric client and legacy
// dialer.
func MakeCommonDeps(cfg config.Config, logger *slog.Logger, client fabric.Client, dial NetworkDialer) *Container {
	return &Container{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  persist.NewStore(client),
		engine: relay.NewEngine(client),
		prefix: puppet.Prefix{Localpart: cfg.PuppetPrefix, ServerName: cfg.ServerName},
		dial:   dial,

		networks: map[string]*state.NetworkRoom{},
	}
}

// loadRooms fetches the operator's persisted blob, absorbs a
// fresh-operator 404 into an immediate default save, and reconstructs
// a NetworkRoom (dialing its legacy connection) plus every child
// Direct/Channel/Plumbed room named in it.
func (c *Container) loadRooms(ctx context.Context) error {
	operator := id.UserID(c.cfg.OperatorUserID)

	blob, fresh, err := persist.Load(ctx, c.client, operator)
	if err != nil {
		return fmt.Errorf("loading account data: %w", err)
	}
	if fresh {
		if err := c.client.PutAccountData(ctx, operator, persist.AccountDataKey, blob); err != nil {
			return fmt.Errorf("saving defaults for fresh operator: %w", err)
		}
	}

	for roomID, entry := range blob.Rooms {
		if err := c.restoreRoom(ctx, operator, id.RoomID(roomID), entry); err != nil {
			c.logger.Error("failed to restore room", "room_id", roomID, "err", err)
		}
	}
	return nil
}

func (c *Container) restoreRoom(ctx context.Context, operator id.UserID, roomID id.RoomID, entry persist.RoomEntry) error {
	switch entry.Kind {
	case "direct":
		var cfg state.DirectConfig
		if err := entry.Load(&cfg); err != nil {
			return err
		}
		network, err := c.networkFor(ctx, operator, cfg.Network)
		if err != nil {
			return err
		}
		room := state.NewDirectRoom(network, cfg.Name)
		if err := room.FromConfig(cfg); err != nil {
			return err
		}
		room.ID = roomID
		network.RegisterDirectRoom(room)
		network.RegisterMxRoom(roomID, room)
	case "channel":
		var cfg state.ChannelConfig
		if err := entry.Load(&cfg); err != nil {
			return err
		}
		network, err := c.networkFor(ctx, operator, cfg.Network)
		if err != nil {
			return err
		}
		room := state.NewChannelRoom(network, cfg.Name)
		if err := room.FromConfig(cfg); err != nil {
			return err
		}
		room.ID = roomID
		network.RegisterChannelRoom(room)
		network.RegisterMxRoom(roomID, room)
	case "plumbed":
		var cfg state.PlumbedConfig
		if err := entry.Load(&cfg); err != nil {
			return err
		}
		network, err := c.networkFor(ctx, operator, cfg.Network)
		if err != nil {
			return err
		}
		room := state.NewPlumbedRoom(network, cfg.Name)
		if err := room.FromConfig(cfg); err != nil {
			return err
		}
		room.MemberSync = state.MemberSyncPolicy{Enabled: c.cfg.MemberSync}
		room.ID = roomID
		network.RegisterChannelRoom(room.ChannelRoom)
		network.RegisterMxRoom(roomID, room)
	default:
		return fmt.Errorf("unknown room kind %q", entry.Kind)
	}
	return nil
}

// networkFor returns the already-dialed NetworkRoom for name, dialing
// and registering a new one on first reference.
func (c *Container) networkFor(ctx context.Context, operator id.UserID, name string) (*state.NetworkRoom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.networks[name]; ok {
		return n, nil
	}
	conn, err := c.dial(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("dialing network %q: %w", name, err)
	}
	n := state.NewNetworkRoom(operator, name, c.client, conn, c.prefix)
	n.BotUser = id.UserID(c.cfg.BotUserID)
	n.Logger = c.logger
	n.Store = c.store
	n.Engine = c.engine
	n.PillsConfig = state.PillsPolicy{MinLength: c.cfg.PillsLength}
	c.networks[name] = n
	return n, nil
}

// runSync drains the fabric sync stream until shutdown, routing each
// event to the room registered for its room id on whichever network
// owns it. Pumping inbound lines off the legacy connection is the
// connection collaborator's job; it calls back into its NetworkRoom's
// Handle* dispatch surface.
func (c *Container) runSync(ctx context.Context) error {
	return c.client.Sync(ctx, func(evt *fabric.Event) {
		c.mu.Lock()
		networks := make([]*state.NetworkRoom, 0, len(c.networks))
		for _, n := range c.networks {
			networks = append(networks, n)
		}
		c.mu.Unlock()

		for _, n := range networks {
			room, ok := n.MxRoomFor(evt.RoomID)
			if !ok {
				continue
			}
			if evt.Redacts != "" {
				room.OnMxRedaction(ctx, evt)
			} else {
				room.OnMxMessage(ctx, evt)
			}
			return
		}
	})
}
