// Package puppet implements the deterministic mapping between a legacy
// network nickname and its fabric-side impersonation identity, plus a
// short-lived cache of observed displaynames used to detect
// nick/displayname drift.
package puppet

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"maunium.net/go/mautrix/id"
)

// Prefix carries the configured puppet localpart prefix and the
// bridge's own fabric server name, the two constants needed to derive
// and recognize puppet user IDs.
type Prefix struct {
	Localpart  string // e.g. "irc_"
	ServerName string // the bridge's own fabric server_name
}

// UserID derives the puppet fabric user ID for a nickname on a given
// network. The mapping is stable and reversible for the bridge's own
// server_name; this is the only direction Parse supports.
func (p Prefix) UserID(network, nick string) id.UserID {
	local := fmt.Sprintf("%s%s_%s", p.Localpart, network, strings.ToLower(nick))
	return id.UserID(fmt.Sprintf("@%s:%s", local, p.ServerName))
}

// IsPuppet reports whether userID was minted by this bridge, i.e. its
// localpart starts with the configured prefix and its homeserver is
// the bridge's own server_name. Used to drop federated echoes of the
// bridge's own puppets before they loop back out to the legacy
// network.
func (p Prefix) IsPuppet(userID id.UserID) bool {
	local, server, ok := parse(userID)
	if !ok {
		return false
	}
	return server == p.ServerName && strings.HasPrefix(local, p.Localpart)
}

// Parse reverses UserID, recovering the network and nickname
// components. It only promises correctness when server equals the
// bridge's configured ServerName; a foreign server's user ids are
// nobody's puppets.
func (p Prefix) Parse(userID id.UserID) (network, nick string, ok bool) {
	local, server, valid := parse(userID)
	if !valid || server != p.ServerName || !strings.HasPrefix(local, p.Localpart) {
		return "", "", false
	}
	rest := strings.TrimPrefix(local, p.Localpart)
	idx := strings.Index(rest, "_")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func parse(userID id.UserID) (local, server string, ok bool) {
	s := string(userID)
	if len(s) == 0 || s[0] != '@' {
		return "", "", false
	}
	s = s[1:]
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// displaynameCacheTTL bounds how long an observed nick->puppet mapping
// is trusted before a fresh displayname refresh is queued again.
const displaynameCacheTTL = 10 * time.Minute

// DisplaynameCache tracks the nickname each puppet was last known to
// display, so room handlers can detect drift (a nick seen on the wire
// that doesn't match the cached puppet displayname) and queue a lazy
// refresh instead of doing it on every line.
type DisplaynameCache struct {
	c *cache.Cache
}

// NewDisplaynameCache builds an empty cache with a bounded TTL and a
// periodic sweep.
func NewDisplaynameCache() *DisplaynameCache {
	return &DisplaynameCache{c: cache.New(displaynameCacheTTL, displaynameCacheTTL/2)}
}

// IsCached reports whether userID is known to currently display nick.
func (d *DisplaynameCache) IsCached(userID id.UserID, nick string) bool {
	v, found := d.c.Get(string(userID))
	return found && v.(string) == nick
}

// Set records that userID currently displays nick.
func (d *DisplaynameCache) Set(userID id.UserID, nick string) {
	d.c.SetDefault(string(userID), nick)
}
