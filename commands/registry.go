// Package commands implements the per-room runtime command surface:
// boolean and integer settings that report their current value when
// run bare and persist a new one before their confirmation notice
// when given an argument.
package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/go-wordwrap"
)

// ErrParse marks a command argument the registry could not interpret.
// Its message is surfaced to the operator verbatim.
var ErrParse = errors.New("commands: parse error")

// ErrNotConnected marks a command that requires the legacy connection
// to be up.
var ErrNotConnected = errors.New("commands: need to be connected to use this command")

// NeedConnectedNotice is the operator-facing text for ErrNotConnected.
const NeedConnectedNotice = "Need to be connected to use this command."

const helpWrapWidth = 80

// BoolCommand is a toggle command. Set must persist the new value
// before returning so the visible confirmation notice is never sent
// ahead of the save.
type BoolCommand struct {
	Name     string
	Help     string
	Get      func() bool
	Set      func(bool) error
	Describe func(enabled bool) string
}

// IntCommand is an integer setter command.
type IntCommand struct {
	Name     string
	Help     string
	Get      func() int
	Set      func(int) error
	Describe func(value int) string
}

// ActionCommand is a one-shot command with no persisted toggle state,
// e.g. WHOIS. Run returns the notice text to send, or "" when the
// command's effect is reported asynchronously by its own collaborator
// (the legacy WHOIS reply arrives over the wire, not as an immediate
// return value).
type ActionCommand struct {
	Name string
	Help string
	Run  func(arg string) (string, error)
}

// Registry holds one room's registered commands, keyed by uppercase
// name; legacy command conventions are case-insensitive.
type Registry struct {
	bools   map[string]BoolCommand
	ints    map[string]IntCommand
	actions map[string]ActionCommand
	order   []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bools: map[string]BoolCommand{}, ints: map[string]IntCommand{}, actions: map[string]ActionCommand{}}
}

// RegisterAction adds a one-shot action command.
func (r *Registry) RegisterAction(cmd ActionCommand) {
	key := strings.ToUpper(cmd.Name)
	r.actions[key] = cmd
	r.order = append(r.order, key)
}

// RegisterBool adds a toggle command.
func (r *Registry) RegisterBool(cmd BoolCommand) {
	key := strings.ToUpper(cmd.Name)
	r.bools[key] = cmd
	r.order = append(r.order, key)
}

// RegisterInt adds an integer-setter command.
func (r *Registry) RegisterInt(cmd IntCommand) {
	key := strings.ToUpper(cmd.Name)
	r.ints[key] = cmd
	r.order = append(r.order, key)
}

// Run executes name with the raw trailing argument text (empty means
// "report current value"), returning the notice text to send. arg is
// trimmed before parsing.
func (r *Registry) Run(name, arg string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	arg = strings.TrimSpace(arg)

	if cmd, ok := r.bools[key]; ok {
		return r.runBool(cmd, arg)
	}
	if cmd, ok := r.ints[key]; ok {
		return r.runInt(cmd, arg)
	}
	if cmd, ok := r.actions[key]; ok {
		return cmd.Run(arg)
	}
	return "", fmt.Errorf("%w: unknown command %q", ErrParse, name)
}

func (r *Registry) runBool(cmd BoolCommand, arg string) (string, error) {
	if arg != "" {
		enabled, err := parseBool(arg)
		if err != nil {
			return "", err
		}
		if err := cmd.Set(enabled); err != nil {
			return "", err
		}
	}
	return cmd.Describe(cmd.Get()), nil
}

func (r *Registry) runInt(cmd IntCommand, arg string) (string, error) {
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a number", ErrParse, arg)
		}
		if err := cmd.Set(n); err != nil {
			return "", err
		}
	}
	return cmd.Describe(cmd.Get()), nil
}

func parseBool(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "1", "true", "on", "enable", "enabled", "yes":
		return true, nil
	case "0", "false", "off", "disable", "disabled", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not true/false", ErrParse, arg)
	}
}

// Help renders the registered commands' one-line descriptions wrapped
// to helpWrapWidth, in registration order.
func (r *Registry) Help() string {
	var b strings.Builder
	for _, key := range r.order {
		var help string
		if cmd, ok := r.bools[key]; ok {
			help = cmd.Help
		} else if cmd, ok := r.ints[key]; ok {
			help = cmd.Help
		} else if cmd, ok := r.actions[key]; ok {
			help = cmd.Help
		}
		if help == "" {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(wordwrap.WrapString(help, helpWrapWidth))
		b.WriteString("\n")
	}
	return b.String()
}
