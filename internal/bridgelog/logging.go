// Package bridgelog builds the structured logger used throughout the
// bridge core: a sub-debug trace level for per-line wire traffic plus
// context-carried network/room tags on every record.
package bridgelog

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a level below slog.LevelDebug, used for per-line wire
// traffic that is too noisy for Debug.
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

type networkKey struct{}
type roomKey struct{}

// WithNetwork returns a context tagging subsequent log records with
// network.
func WithNetwork(ctx context.Context, network string) context.Context {
	return context.WithValue(ctx, networkKey{}, network)
}

// WithRoom returns a context tagging subsequent log records with room.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, roomKey{}, room)
}

// New builds the bridge's *slog.Logger for the given configured level
// name ("trace", "debug", "info", "warn", "error").
func New(logLevel string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "trace":
		level = LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		fallthrough
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				label, exists := levelNames[lvl]
				if !exists {
					label = lvl.String()
				}
				a.Value = slog.StringValue(label)
			}
			return a
		},
	}
	return slog.New(handler{slog.NewTextHandler(os.Stdout, opts)})
}

type handler struct {
	slog.Handler
}

func (h handler) Handle(ctx context.Context, r slog.Record) error {
	if network, ok := ctx.Value(networkKey{}).(string); ok {
		r.AddAttrs(slog.Attr{Key: "network", Value: slog.StringValue(network)})
	}
	if room, ok := ctx.Value(roomKey{}).(string); ok {
		r.AddAttrs(slog.Attr{Key: "room", Value: slog.StringValue(room)})
	}
	return h.Handler.Handle(ctx, r)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handler{h.Handler.WithAttrs(attrs)}
}

func (h handler) WithGroup(name string) slog.Handler {
	return handler{h.Handler.WithGroup(name)}
}
