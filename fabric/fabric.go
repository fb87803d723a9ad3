// Package fabric declares the contract the bridge core needs from the
// federated chat fabric. The core never talks to a homeserver
// directly: it is handed a Client built on maunium.net/go/mautrix by
// the process bootstrap, and everything in this package describes what
// the core is allowed to ask that client for.
//
// Event and message shapes reuse maunium.net/go/mautrix's event and id
// packages so that a real Client implementation is just a thin adapter
// over *mautrix.Client / appservice.IntentAPI, not a parallel type
// system.
package fabric

import (
	"context"
	"errors"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// ErrNotFound is returned by Client methods when the requested remote
// resource does not exist (HTTP 404). Account-data loads treat this as
// "fresh operator" rather than a failure.
var ErrNotFound = errors.New("fabric: resource not found")

// ErrRemote wraps any other fabric API failure. Callers surface it to
// the operator as a notice and abort the triggering action without
// mutating state.
type ErrRemote struct {
	Op  string
	Err error
}

func (e *ErrRemote) Error() string { return "fabric: " + e.Op + ": " + e.Err.Error() }

func (e *ErrRemote) Unwrap() error { return e.Err }

// Event is a fabric room event as delivered by the client's sync
// stream, trimmed to the fields the core inspects.
type Event struct {
	ID      id.EventID
	RoomID  id.RoomID
	Sender  id.UserID
	Type    event.Type
	Content event.MessageEventContent
	Redacts id.EventID // set only for m.room.redaction events
}

// MediaRef describes one entry in a room's bounded media log.
type MediaRef struct {
	EventID  id.EventID
	MediaURI id.ContentURIString
}

// RoomCreateParams mirrors the fields the bridge supplies when it asks
// the fabric to create a new room for a Direct or Channel room.
type RoomCreateParams struct {
	Name   string
	Topic  string
	Invite []id.UserID
}

// Client is everything the core needs from the fabric. A production
// implementation adapts *mautrix.Client (for the operator's intent) and
// an appservice.IntentAPI per puppet; tests supply an in-memory fake.
//
// Methods taking an asUser parameter act as that puppet when it is
// non-empty and as the bridge bot itself when it is "".
type Client interface {
	CreateRoom(ctx context.Context, params RoomCreateParams) (id.RoomID, error)
	JoinRoomByAlias(ctx context.Context, alias string) (id.RoomID, error)
	Invite(ctx context.Context, roomID id.RoomID, userID id.UserID) error
	Leave(ctx context.Context, roomID id.RoomID) error

	GetStateEvent(ctx context.Context, roomID id.RoomID, evType event.Type, content any) error
	SetTopic(ctx context.Context, roomID id.RoomID, topic string) error
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*Event, error)
	JoinedMembers(ctx context.Context, roomID id.RoomID) (map[id.UserID]string, error)

	SendMessage(ctx context.Context, roomID id.RoomID, asUser id.UserID, content event.MessageEventContent) (id.EventID, error)
	SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, key string) error
	SendReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) error
	RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) error

	UploadMedia(ctx context.Context, asUser id.UserID, contentType string, data []byte) (id.ContentURIString, error)
	ResolveMediaURL(ctx context.Context, uri id.ContentURIString) (string, error)

	GetAccountData(ctx context.Context, userID id.UserID, key string, out any) error
	PutAccountData(ctx context.Context, userID id.UserID, key string, value any) error

	// QuarantineMedia is optional: only synapse deployments with admin
	// privilege support it. Implementations without admin access return
	// an error so callers can surface the "left available" notice.
	QuarantineMedia(ctx context.Context, mediaURI id.ContentURIString) error

	// Sync blocks, delivering every room event observed on the
	// client's own sync stream to onEvent, until ctx is canceled or the
	// stream itself fails. A production implementation adapts
	// mautrix-go's DefaultSyncer.OnEventType plus SyncWithContext.
	Sync(ctx context.Context, onEvent func(*Event)) error
}
