package relay

import (
	"context"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mk6i/matrix-irc-bridge/fabric"
)

// PostMessage posts plain (with an HTML body when formatted is
// non-empty) as asUser, the impersonating puppet for a relayed line
// or the bridge itself for a self-echo.
func (e *Engine) PostMessage(ctx context.Context, roomID id.RoomID, asUser id.UserID, plain, formatted string) (id.EventID, error) {
	content := event.MessageEventContent{MsgType: event.MsgText, Body: plain}
	if formatted != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = formatted
	}
	evtID, err := e.Client.SendMessage(ctx, roomID, asUser, content)
	if err != nil {
		return "", &fabric.ErrRemote{Op: "SendMessage", Err: err}
	}
	return evtID, nil
}

// PostEmote posts a legacy CTCP ACTION as a fabric m.emote.
func (e *Engine) PostEmote(ctx context.Context, roomID id.RoomID, asUser id.UserID, plain, formatted string) (id.EventID, error) {
	content := event.MessageEventContent{MsgType: event.MsgEmote, Body: plain}
	if formatted != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = formatted
	}
	evtID, err := e.Client.SendMessage(ctx, roomID, asUser, content)
	if err != nil {
		return "", &fabric.ErrRemote{Op: "SendMessage", Err: err}
	}
	return evtID, nil
}

// PostNotice posts a legacy NOTICE as a fabric m.notice, with an HTML
// fallback body used when the caller could not otherwise express the
// sender attribution inline.
func (e *Engine) PostNotice(ctx context.Context, roomID id.RoomID, asUser id.UserID, plain, formatted, fallbackHTML string) (id.EventID, error) {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: plain}
	switch {
	case formatted != "":
		content.Format = event.FormatHTML
		content.FormattedBody = formatted
	case fallbackHTML != "":
		content.Format = event.FormatHTML
		content.FormattedBody = fallbackHTML
	}
	evtID, err := e.Client.SendMessage(ctx, roomID, asUser, content)
	if err != nil {
		return "", &fabric.ErrRemote{Op: "SendMessage", Err: err}
	}
	return evtID, nil
}
