// Package relay implements the bridge's dispatch decisions: given a
// fabric event or a legacy line plus the owning room, decide what to
// send, react with, truncate, or pastebin, and carry those side
// effects out through the room's legacy/fabric collaborators.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/wire"
)

// MediaLogEntry records one piece of media a room has relayed, kept so
// a later redaction can find it for quarantine. Defined here rather
// than in state so the engine never needs to import the room package;
// state.MediaLogEntry is a type alias for this type.
type MediaLogEntry struct {
	EventID  id.EventID
	MediaURI string
}

// LastMessage is the most recently relayed content for one sender,
// kept so a subsequent edit can be turned into a compact diff line
// instead of a full re-send. state.LastMessage is a type alias for
// this type.
type LastMessage struct {
	EventID id.EventID
	Body    string
}

// RoomState is everything the engine needs from a room to carry out a
// relay decision. It exists so this package never imports state (state
// imports relay to reach Engine, so the dependency can only run one
// way); *state.Room satisfies it structurally, and every room kind
// gets it for free by embedding *state.Room.
type RoomState interface {
	OperatorID() id.UserID
	DisplaynameMap() map[id.UserID]string
	LastMessageFor(sender id.UserID) (LastMessage, bool)
	SetLastMessage(sender id.UserID, lm LastMessage)
	AppendMedia(entry MediaLogEntry)
	MediaSnapshot() []MediaLogEntry
}

// ErrProtocolInvariant marks an event whose shape the engine cannot
// make sense of: no usable body, or an edit with a missing or
// self-referential target. Callers log it and drop the event; the
// process continues.
var ErrProtocolInvariant = errors.New("relay: unexpected event shape")

const (
	reactScissors = "✂"
	reactMemo     = "📝"
	reactLink     = "🔗"
)

// Sendable is the room-specific legacy send operation (PRIVMSG,
// NOTICE or ACTION to the room's target) plus a react callback,
// supplied by the room kind that owns the relay.
type Sendable struct {
	Send   func(line string)
	React  func(key string)
	Target string

	Nick, User, Host string
}

// RoomConfig carries the per-room policy knobs the engine consults;
// PlumbedRoom supplies its live values, Direct/Channel rooms never
// truncate (MaxLines: 0, UsePastebin: false).
type RoomConfig struct {
	MaxLines    int
	UsePastebin bool
}

// Engine dispatches relay decisions for one room. It holds no per-room
// state itself; all mutable tracking lives on the RoomState passed to
// each call.
type Engine struct {
	Client fabric.Client
}

// NewEngine builds an Engine bound to a fabric client.
func NewEngine(client fabric.Client) *Engine {
	return &Engine{Client: client}
}

// resolveReplyTo chases m.replace links to the non-edit base event,
// then resolves its m.in_reply_to target if any. A NotFound anywhere
// along the chain means the referenced event is gone (redacted or
// beyond the server's history); the message is then relayed without
// reply attribution rather than dropped.
func (e *Engine) resolveReplyTo(ctx context.Context, roomID id.RoomID, content event.MessageEventContent) (*fabric.Event, error) {
	cur := content
	for cur.RelatesTo != nil && cur.RelatesTo.Type == event.RelReplace && cur.RelatesTo.EventID != "" {
		target, err := e.Client.GetEvent(ctx, roomID, cur.RelatesTo.EventID)
		if err != nil {
			if errors.Is(err, fabric.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		cur = target.Content
	}

	if cur.RelatesTo == nil || cur.RelatesTo.InReplyTo == nil || cur.RelatesTo.InReplyTo.EventID == "" {
		return nil, nil
	}
	replyEvt, err := e.Client.GetEvent(ctx, roomID, cur.RelatesTo.InReplyTo.EventID)
	if err != nil {
		if errors.Is(err, fabric.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return replyEvt, nil
}

// processContent renders one fabric content body into wire-framed
// legacy lines, applying displayname substitution, reply-fallback
// stripping and the sender prefix on the first line.
func processContent(content event.MessageEventContent, displaynames map[id.UserID]string, replyTo *fabric.Event, eventSender id.UserID, prefix string, s Sendable) []string {
	rp := wire.RenderParams{
		PlainBody:        content.Body,
		FormattedBody:    content.FormattedBody,
		HasFormatted:     content.FormattedBody != "",
		HasReplyFallback: content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil,
		Displaynames:     displaynames,
		EventSender:      eventSender,
		Prefix:           prefix,
		Nick:             s.Nick,
		User:             s.User,
		Host:             s.Host,
		Target:           s.Target,
	}
	if replyTo != nil {
		name := string(replyTo.Sender)
		if dn, ok := displaynames[replyTo.Sender]; ok {
			name = dn
		}
		rp.ReplyTo = &wire.ReplyContext{Sender: replyTo.Sender, Displayname: name}
	}
	return wire.Render(rp)
}

// SendMessage relays one fabric message event out to the legacy
// network: reply resolution, edit-vs-fresh tracking, line budgeting
// with pastebin fallback, and dispatch. prefix is prepended to the
// first rendered line (the plumbed sender, or empty for Direct/
// Channel rooms).
func (e *Engine) SendMessage(ctx context.Context, room RoomState, roomID id.RoomID, evt *fabric.Event, cfg RoomConfig, prefix string, s Sendable) error {
	content := evt.Content

	// shape check before any remote calls
	if content.NewContent != nil {
		switch {
		case content.RelatesTo == nil || content.RelatesTo.EventID == "":
			return fmt.Errorf("%w: edit with no target event", ErrProtocolInvariant)
		case content.RelatesTo.EventID == evt.ID:
			return fmt.Errorf("%w: edit targeting itself", ErrProtocolInvariant)
		case content.NewContent.Body == "" && content.NewContent.FormattedBody == "":
			return fmt.Errorf("%w: edit with no usable body", ErrProtocolInvariant)
		}
	} else if content.Body == "" && content.FormattedBody == "" {
		return fmt.Errorf("%w: message with no usable body", ErrProtocolInvariant)
	}

	replyTo, err := e.resolveReplyTo(ctx, roomID, content)
	if err != nil {
		return &fabric.ErrRemote{Op: "resolveReplyTo", Err: err}
	}

	displaynames := room.DisplaynameMap()

	var lines []string

	if content.NewContent != nil {
		lines = processContent(*content.NewContent, displaynames, replyTo, evt.Sender, prefix, s)

		targetEventID := id.EventID("")
		if content.RelatesTo != nil {
			targetEventID = content.RelatesTo.EventID
		}

		prev, ok := room.LastMessageFor(evt.Sender)
		if ok && prev.EventID == targetEventID {
			oldLines := processContent(event.MessageEventContent{Body: prev.Body}, displaynames, replyTo, evt.Sender, prefix, s)

			var edits []string
			mlen := len(lines)
			if len(oldLines) > mlen {
				mlen = len(oldLines)
			}
			for i := 0; i < mlen; i++ {
				old := ""
				if i < len(oldLines) {
					old = oldLines[i]
				}
				next := ""
				if i < len(lines) {
					next = lines[i]
				}
				if d := wire.LineDiff(old, next); d != nil {
					edits = append(edits, prefix+*d)
				}
			}
			// a compact edit only works when exactly one line changed;
			// anything else falls back to re-sending the whole message
			if len(edits) == 1 {
				lines = edits
			}
			room.SetLastMessage(evt.Sender, LastMessage{EventID: targetEventID, Body: content.NewContent.Body})
		} else {
			// the edited message was never tracked; best effort is to
			// send the re-rendered content in full and track it from now
			room.SetLastMessage(evt.Sender, LastMessage{EventID: targetEventID, Body: content.NewContent.Body})
		}
	} else {
		room.SetLastMessage(evt.Sender, LastMessage{EventID: evt.ID, Body: content.Body})
		lines = processContent(content, displaynames, replyTo, evt.Sender, prefix, s)
	}

	return e.dispatchLines(ctx, room, evt, cfg, lines, s)
}

// dispatchLines pushes rendered lines out through s, enforcing the
// room's max_lines budget with either a pastebin upload or a plain
// truncation marker, and reacting on the source event so the author
// can see what happened to their message.
func (e *Engine) dispatchLines(ctx context.Context, room RoomState, evt *fabric.Event, cfg RoomConfig, lines []string, s Sendable) error {
	n := cfg.MaxLines

	for i, line := range lines {
		if n > 0 && i == n-1 && len(lines) > n {
			s.React(reactScissors)

			if cfg.UsePastebin {
				joined := strings.Join(lines, "\n")
				uri, err := e.Client.UploadMedia(ctx, room.OperatorID(), "text/plain; charset=UTF-8", []byte(joined))
				if err != nil {
					return &fabric.ErrRemote{Op: "UploadMedia", Err: err}
				}
				url, err := e.Client.ResolveMediaURL(ctx, uri)
				if err != nil {
					return &fabric.ErrRemote{Op: "ResolveMediaURL", Err: err}
				}

				if n == 1 {
					// no verbatim lines precede the link, so the link is
					// the whole message
					s.Send(url)
				} else {
					s.Send(fmt.Sprintf("... long message truncated: %s (%d lines)", url, len(lines)))
				}
				s.React(reactMemo)
				room.AppendMedia(MediaLogEntry{EventID: evt.ID, MediaURI: string(uri)})
			} else if n == 1 {
				// best effort is to send the first line and give up
				s.Send(line)
			} else {
				s.Send("... long message truncated")
			}
			return nil
		}
		s.Send(line)
	}

	// show number of lines sent when nothing was truncated
	if n == 0 && len(lines) > 1 {
		s.React(fmt.Sprintf("%s %d lines", reactScissors, len(lines)))
	}
	return nil
}

// SendMedia relays a fabric media event as a single legacy PRIVMSG
// carrying the resolved URL, reacted with 🔗 and recorded in the
// room's media log.
func (e *Engine) SendMedia(ctx context.Context, room RoomState, evt *fabric.Event, prefix string, s Sendable) error {
	url, err := e.Client.ResolveMediaURL(ctx, evt.Content.URL)
	if err != nil {
		return &fabric.ErrRemote{Op: "ResolveMediaURL", Err: err}
	}
	s.Send(prefix + url)
	s.React(reactLink)
	room.AppendMedia(MediaLogEntry{EventID: evt.ID, MediaURI: string(evt.Content.URL)})
	return nil
}

// HandleRedaction checks whether the redacted event carried logged
// media and, if so, asks the fabric to quarantine it. Either outcome
// is reported through notify so the operator knows whether the media
// is still reachable.
func (e *Engine) HandleRedaction(ctx context.Context, room RoomState, redacts id.EventID, notify func(text string)) {
	for _, entry := range room.MediaSnapshot() {
		if entry.EventID != redacts {
			continue
		}
		if err := e.Client.QuarantineMedia(ctx, id.ContentURIString(entry.MediaURI)); err != nil {
			notify(fmt.Sprintf("Failed to quarantine media! Associated media %s for redacted event %s is left available.", entry.MediaURI, redacts))
		} else {
			notify(fmt.Sprintf("Associated media %s for redacted event %s was quarantined.", entry.MediaURI, redacts))
		}
		return
	}
}
