package state

import (
	"context"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/commands"
	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// MemberSyncPolicy is a copy of the global member-sync setting. The
// bootstrap sets it on each plumbed room it restores at startup; it is
// not part of PlumbedConfig, so a room's value follows the global
// setting in force at the latest restart, not the one at room creation.
type MemberSyncPolicy struct {
	Enabled bool
}

// PlumbedRoom is a ChannelRoom attached to an existing shared fabric
// room. Unlike a bridge-created channel room it carries per-room relay
// policies, and its notices forward to the owning network room by
// default since the room itself belongs to its fabric members.
type PlumbedRoom struct {
	*ChannelRoom

	MaxLines          int
	UsePastebin       bool
	UseDisplaynames   bool
	UseDisambiguation bool
	UseZWSP           bool
	AllowNotice       bool
	NeedInvite        bool
	MemberSync        MemberSyncPolicy
}

// plumbedSenderMaxLen caps the rendered sender prefix.
const plumbedSenderMaxLen = 100

// NewPlumbedRoom constructs a PlumbedRoom with its default policies:
// five lines before pastebin, disambiguation on, displaynames/ZWSP/
// notice relay off.
func NewPlumbedRoom(network *NetworkRoom, name string) *PlumbedRoom {
	ch := NewChannelRoom(network, name)
	ch.Room.SetForceForward(true)
	ch.excludeSelfPills = true
	return &PlumbedRoom{
		ChannelRoom:       ch,
		MaxLines:          5,
		UsePastebin:       true,
		UseDisplaynames:   false,
		UseDisambiguation: true,
		UseZWSP:           false,
		AllowNotice:       false,
		NeedInvite:        false,
	}
}

// PlumbedConfig is the persisted shape of a PlumbedRoom.
type PlumbedConfig struct {
	Name              string
	Network           string
	Key               string
	Media             []MediaLogEntry
	MaxLines          int
	UsePastebin       bool
	UseDisplaynames   bool
	UseDisambiguation bool
	UseZWSP           bool
	AllowNotice       bool
}

// FromConfig restores the room's persisted fields and policies.
func (p *PlumbedRoom) FromConfig(cfg PlumbedConfig) error {
	if err := p.ChannelRoom.FromConfig(ChannelConfig{Name: cfg.Name, Network: cfg.Network, Key: cfg.Key, Media: cfg.Media}); err != nil {
		return err
	}
	p.MaxLines = cfg.MaxLines
	p.UsePastebin = cfg.UsePastebin
	p.UseDisplaynames = cfg.UseDisplaynames
	p.UseDisambiguation = cfg.UseDisambiguation
	p.UseZWSP = cfg.UseZWSP
	p.AllowNotice = cfg.AllowNotice
	return nil
}

// ToConfig returns the room's persisted shape, policies included.
func (p *PlumbedRoom) ToConfig() PlumbedConfig {
	ch := p.ChannelRoom.ToConfig()
	return PlumbedConfig{
		Name:              ch.Name,
		Network:           ch.Network,
		Key:               ch.Key,
		Media:             ch.Media,
		MaxLines:          p.MaxLines,
		UsePastebin:       p.UsePastebin,
		UseDisplaynames:   p.UseDisplaynames,
		UseDisambiguation: p.UseDisambiguation,
		UseZWSP:           p.UseZWSP,
		AllowNotice:       p.AllowNotice,
	}
}

// Pills builds this room's mention-candidate map, then drops the
// bridge's own nick so a relayed line can never mention the bridge
// back at itself.
func (p *PlumbedRoom) Pills() map[string]wire.Pill {
	ret := p.ChannelRoom.Pills()
	nick := strings.ToLower(p.Network.Conn.RealNickname())
	delete(ret, nick)
	return ret
}

// RenderSender computes the sender prefix for a relayed fabric
// message: the fabric user id, optionally ZWSP-split, optionally
// replaced by the sender's displayname with a disambiguating user-id
// suffix when another member shares it, capped at 100 characters.
func (p *PlumbedRoom) RenderSender(eventSender id.UserID) string {
	sender := string(eventSender)

	if p.UseZWSP {
		sender = zwspSplitUserID(sender)
	}

	if p.UseDisplaynames {
		if displayname, ok := p.Displayname(eventSender); ok {
			if p.UseDisambiguation && p.displaynameCollides(eventSender, displayname) {
				// the suffix carries the plain user id so it stays
				// copy-pastable on the legacy side
				displayname = displayname + " (" + string(eventSender) + ")"
			}
			if p.UseZWSP && len(displayname) > 1 {
				displayname = displayname[:1] + zwsp + displayname[1:]
			}
			sender = displayname
		}
	}

	if len(sender) > plumbedSenderMaxLen {
		sender = sender[:plumbedSenderMaxLen]
	}
	return sender
}

const zwsp = "\u200b"

// zwspSplitUserID inserts a ZWSP after the first two characters of the
// localpart and after the first character of the domain, keeping the
// user id visually identical but non-pinging on the legacy side.
func zwspSplitUserID(userID string) string {
	name, server, ok := strings.Cut(strings.TrimPrefix(userID, "@"), ":")
	if !ok {
		return userID
	}
	if len(name) > 2 {
		name = name[:2] + zwsp + name[2:]
	}
	if len(server) > 1 {
		server = server[:1] + zwsp + server[1:]
	}
	return "@" + name + ":" + server
}

func (p *PlumbedRoom) displaynameCollides(self id.UserID, displayname string) bool {
	for _, userID := range p.MembersSnapshot() {
		if userID == self {
			continue
		}
		if name, ok := p.Displayname(userID); ok && name == displayname {
			return true
		}
	}
	return false
}

// IsSelfOrPuppetEcho reports whether a fabric message originated from
// this bridge's own legacy relay, either as the bridge bot or one of
// its puppets, and must not be relayed back out.
func (p *PlumbedRoom) IsSelfOrPuppetEcho(sender, bridgeBotUserID id.UserID) bool {
	if sender == bridgeBotUserID {
		return true
	}
	return p.Network.Prefix.IsPuppet(sender)
}

// Save overrides ChannelRoom.Save so the persisted policy fields
// (max_lines, use_pastebin, ...) are included rather than lost to the
// embedded type's narrower config.
func (p *PlumbedRoom) Save(ctx context.Context) error {
	entry, err := persist.NewRoomEntry("plumbed", p.ToConfig())
	if err != nil {
		return err
	}
	return p.Store.SaveRoom(ctx, p.Operator, p.ID, entry)
}

// Commands builds this room's runtime toggle surface: MAXLINES,
// PASTEBIN, DISPLAYNAMES, DISAMBIGUATION, ZWSP and NOTICERELAY, each
// reporting its current value when run bare and persisting through
// save before confirming a new one.
func (p *PlumbedRoom) Commands(save func() error) *commands.Registry {
	reg := commands.NewRegistry()

	reg.RegisterInt(commands.IntCommand{
		Name: "MAXLINES",
		Help: "set maximum number of lines per message until truncation or pastebin",
		Get:  func() int { return p.MaxLines },
		Set: func(v int) error {
			p.MaxLines = v
			return save()
		},
		Describe: func(v int) string { return "Max lines is " + strconv.Itoa(v) },
	})
	reg.RegisterBool(commands.BoolCommand{
		Name: "PASTEBIN",
		Help: "enable or disable automatic pastebin of long messages",
		Get:  func() bool { return p.UsePastebin },
		Set: func(v bool) error {
			p.UsePastebin = v
			return save()
		},
		Describe: func(v bool) string { return "Pastebin is " + enabledDisabled(v) },
	})
	reg.RegisterBool(commands.BoolCommand{
		Name: "DISPLAYNAMES",
		Help: "enable or disable use of displaynames in relayed messages",
		Get:  func() bool { return p.UseDisplaynames },
		Set: func(v bool) error {
			p.UseDisplaynames = v
			return save()
		},
		Describe: func(v bool) string { return "Displaynames are " + enabledDisabled(v) },
	})
	reg.RegisterBool(commands.BoolCommand{
		Name: "DISAMBIGUATION",
		Help: "enable or disable disambiguation of conflicting displaynames",
		Get:  func() bool { return p.UseDisambiguation },
		Set: func(v bool) error {
			p.UseDisambiguation = v
			return save()
		},
		Describe: func(v bool) string { return "Disambiguation is " + enabledDisabled(v) },
	})
	reg.RegisterBool(commands.BoolCommand{
		Name: "ZWSP",
		Help: "enable or disable Zero-Width-Space anti-ping",
		Get:  func() bool { return p.UseZWSP },
		Set: func(v bool) error {
			p.UseZWSP = v
			return save()
		},
		Describe: func(v bool) string { return "Zero-Width-Space anti-ping is " + enabledDisabled(v) },
	})
	reg.RegisterBool(commands.BoolCommand{
		Name: "NOTICERELAY",
		Help: "enable or disable relaying of fabric notices to the legacy network",
		Get:  func() bool { return p.AllowNotice },
		Set: func(v bool) error {
			p.AllowNotice = v
			return save()
		},
		Describe: func(v bool) string { return "Notice relay is " + enabledDisabled(v) },
	})

	return reg
}

func enabledDisabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
