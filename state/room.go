// Package state implements the per-room membership, displayname, and
// last-message bookkeeping shared by every room flavor, plus the three
// concrete room kinds built on top of it.
package state

import (
	"context"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/persist"
	"github.com/mk6i/matrix-irc-bridge/relay"
)

// maxMediaLogEntries bounds the media log, both in memory and in the
// persisted config.
const maxMediaLogEntries = 5

// MediaLogEntry records one piece of media a room has relayed, kept so
// a later redaction can find it for quarantine. Aliased to
// relay.MediaLogEntry so the relay engine (which this package calls
// into) never needs to import state in return.
type MediaLogEntry = relay.MediaLogEntry

// LastMessage is the most recently relayed content for one sender,
// kept so a subsequent edit can be turned into a compact diff line
// instead of a full re-send. Aliased to relay.LastMessage for the same
// reason as MediaLogEntry.
type LastMessage = relay.LastMessage

// MxRoomHandler is the shared fabric-event surface every room kind
// exposes to the sync dispatch loop.
type MxRoomHandler interface {
	OnMxMessage(ctx context.Context, evt *fabric.Event)
	OnMxRedaction(ctx context.Context, evt *fabric.Event)
}

// Config is a map-shaped view of a room's persisted state. The room
// kinds do not implement it: their ToConfig methods return the concrete
// DirectConfig, ChannelConfig and PlumbedConfig structs, and startup
// restoration picks the struct by the persisted entry's kind.
type Config interface {
	ToConfig() map[string]any
}

// Room is the state shared by every room flavor. It is never used
// bare; DirectRoom, ChannelRoom and PlumbedRoom all embed it.
//
// A Room's mutable fields are touched only from the single scheduling
// domain of its owning NetworkRoom; the mutex here guards against the
// one cross-domain read path (membership/displayname lookups from a
// concurrent lazy-refresh task) rather than general concurrent access.
type Room struct {
	mu sync.RWMutex

	ID       id.RoomID
	Operator id.UserID

	Members      map[id.UserID]bool
	Displaynames map[id.UserID]string

	LastMessage map[id.UserID]LastMessage
	MediaLog    []MediaLogEntry

	// notifier delegates an upward-forwarded notice to the owning
	// NetworkRoom; nil for a NetworkRoom itself. Set at construction by
	// the room kind, never persisted.
	notifier func(text, formatted string)

	// forceForward makes SendNotice forward upward even without an
	// explicit request; PlumbedRoom sets this true.
	forceForward bool

	// Name is used only to build the "<roomname>: " forwarding prefix;
	// room kinds set it to their display name (peer nick or channel
	// name).
	Name string

	// outbox serializes this room's outbound fabric side effects.
	// Started lazily by Dispatch so tests constructing a bare Room
	// never pay for an idle goroutine.
	outbox *Outbox

	// Store is the persistence collaborator this room's Save methods
	// write through. Copied from the owning NetworkRoom at
	// construction; nil for a bare Room built directly in tests.
	Store *persist.Store

	// Client is the fabric collaborator React/PostReceipt post
	// through. Copied from the owning NetworkRoom at construction; nil
	// for a bare Room built directly in tests.
	Client fabric.Client
}

// NewRoom builds an empty, not-yet-valid Room owned by operator.
// Callers populate ID, Name and the notifier before the room is usable.
func NewRoom(operator id.UserID) *Room {
	return &Room{
		Operator:     operator,
		Members:      map[id.UserID]bool{},
		Displaynames: map[id.UserID]string{},
		LastMessage:  map[id.UserID]LastMessage{},
	}
}

// Dispatch enqueues fn onto this room's outbound FIFO, starting the
// drain goroutine on first use. Outbound fabric events from a single
// room are serialized through this queue so their order matches the
// order of the legacy events that produced them.
func (r *Room) Dispatch(ctx context.Context, fn func(ctx context.Context)) string {
	r.mu.Lock()
	if r.outbox == nil {
		r.outbox = NewOutbox(ctx)
	}
	o := r.outbox
	r.mu.Unlock()
	return o.Enqueue(fn)
}

// CloseOutbox cancels the room's outbound queue goroutine, if one was
// ever started.
func (r *Room) CloseOutbox() {
	r.mu.Lock()
	o := r.outbox
	r.mu.Unlock()
	if o != nil {
		o.Close()
	}
}

// IsValid reports whether the room has a fabric room id and the
// operator is still a member. Room kinds with mandatory identity
// fields (network name, peer nick, channel name) additionally check
// those in their own IsValid.
func (r *Room) IsValid() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ID != "" && r.Members[r.Operator]
}

// InRoom reports whether userID is a current member.
func (r *Room) InRoom(userID id.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Members[userID]
}

// AddMember records userID (and its displayname, if known) as present.
func (r *Room) AddMember(userID id.UserID, displayname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Members[userID] = true
	if displayname != "" {
		r.Displaynames[userID] = displayname
	}
}

// RemoveMember forgets userID's membership and cached displayname.
func (r *Room) RemoveMember(userID id.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Members, userID)
	delete(r.Displaynames, userID)
}

// SetDisplayname updates the cached displayname for a member without
// touching membership.
func (r *Room) SetDisplayname(userID id.UserID, displayname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Displaynames[userID] = displayname
}

// Displayname returns the cached displayname for userID, or ok=false
// when none is known.
func (r *Room) Displayname(userID id.UserID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.Displaynames[userID]
	return name, ok
}

// MembersSnapshot returns the current member set, safe to range over
// without holding the room lock.
func (r *Room) MembersSnapshot() []id.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]id.UserID, 0, len(r.Members))
	for userID := range r.Members {
		out = append(out, userID)
	}
	return out
}

// OperatorID satisfies relay.RoomState: it is Operator under a method
// name, since Go forbids a field and method from sharing a name.
func (r *Room) OperatorID() id.UserID {
	return r.Operator
}

// DisplaynameMap returns a snapshot of the cached displaynames,
// satisfying relay.RoomState the same way Displaynames would as a bare
// field.
func (r *Room) DisplaynameMap() map[id.UserID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[id.UserID]string, len(r.Displaynames))
	for userID, name := range r.Displaynames {
		out[userID] = name
	}
	return out
}

// SetNotifier installs the function SendNotice delegates to when
// forwarding to the owning NetworkRoom. Called once at room
// construction.
func (r *Room) SetNotifier(forward func(text, formatted string)) {
	r.notifier = forward
}

// SendNotice decides whether a notice is forwarded upward. When
// forward is true, or the room carries forceForward and no explicit
// userID was given, the notice is delegated to the owning
// NetworkRoom's notice channel with a "<roomname>: " prefix; otherwise
// posting directly is the caller's responsibility (see PostNotice).
func (r *Room) SendNotice(text, formatted string, userID id.UserID, forward bool) (forwarded bool) {
	if (forward || r.forceForward) && userID == "" {
		if r.notifier != nil {
			r.notifier(r.Name+": "+text, prefixFormatted(r.Name, formatted))
		}
		return true
	}
	return false
}

func prefixFormatted(name, formatted string) string {
	if formatted == "" {
		return ""
	}
	return name + ": " + formatted
}

// SetForceForward makes every notice forward upward by default;
// PlumbedRoom sets it at construction.
func (r *Room) SetForceForward(v bool) {
	r.forceForward = v
}

// LastMessageFor returns the cached last tracked content for sender,
// used by the relay engine to decide whether an edit targets the
// message it is chasing.
func (r *Room) LastMessageFor(sender id.UserID) (LastMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.LastMessage[sender]
	return lm, ok
}

// SetLastMessage updates the tracked last event for sender, whether
// the new content came from a fresh message or an applied edit.
func (r *Room) SetLastMessage(sender id.UserID, lm LastMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastMessage[sender] = lm
}

// AppendMedia records a relayed media reference, truncating the log to
// the most recent maxMediaLogEntries.
func (r *Room) AppendMedia(entry MediaLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MediaLog = append(r.MediaLog, entry)
	if len(r.MediaLog) > maxMediaLogEntries {
		r.MediaLog = r.MediaLog[len(r.MediaLog)-maxMediaLogEntries:]
	}
}

// MediaSnapshot returns a copy of the media log, safe to range over
// without holding the room lock.
func (r *Room) MediaSnapshot() []MediaLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MediaLogEntry, len(r.MediaLog))
	copy(out, r.MediaLog)
	return out
}

// React posts a fabric reaction to eventID through this room's fabric
// client.
func (r *Room) React(ctx context.Context, eventID id.EventID, emoji string) error {
	if r.Client == nil {
		return nil
	}
	if err := r.Client.SendReaction(ctx, r.ID, eventID, emoji); err != nil {
		return &fabric.ErrRemote{Op: "SendReaction", Err: err}
	}
	return nil
}

// PostReceipt posts a read receipt for eventID, marking the event as
// handled for any client watching the operator's read position.
func (r *Room) PostReceipt(ctx context.Context, eventID id.EventID) error {
	if r.Client == nil {
		return nil
	}
	if err := r.Client.SendReceipt(ctx, r.ID, eventID); err != nil {
		return &fabric.ErrRemote{Op: "SendReceipt", Err: err}
	}
	return nil
}

// truncatedMedia returns media trimmed to maxMediaLogEntries, the form
// the room configs persist.
func truncatedMedia(media []MediaLogEntry) []MediaLogEntry {
	if len(media) <= maxMediaLogEntries {
		return media
	}
	return media[len(media)-maxMediaLogEntries:]
}
