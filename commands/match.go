package commands

import (
	"errors"
	"regexp"
	"strings"
)

// selfAddressRgxp matches a message addressed to someone by name, in
// any of the "name: ...", "name, ..." or "@name ..." forms clients
// produce.
var selfAddressRgxp = regexp.MustCompile(`^\s*@?([^:,\s]+)[\s:,]*(.+)$`)

// Match reports whether body addresses the bridge bot by localpart,
// returning the remaining command text to route to Run. ok is false
// when body does not match the address form, or addresses someone
// else.
func Match(body, botLocalpart string) (rest string, ok bool) {
	m := selfAddressRgxp.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if !strings.EqualFold(m[1], botLocalpart) {
		return "", false
	}
	return m[2], true
}

// Dispatch matches body against botLocalpart and, if it addresses the
// bridge bot, runs the named command against reg. handled is false
// when body does not address the bot at all, in which case it should
// be relayed as an ordinary message instead. Any error Run returns is
// converted to its operator-facing notice text here, so a caller
// never needs its own error-to-notice mapping.
func Dispatch(reg *Registry, body, botLocalpart string) (handled bool, notice string) {
	rest, ok := Match(body, botLocalpart)
	if !ok {
		return false, ""
	}
	name, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	out, err := reg.Run(name, arg)
	if err == nil {
		return true, out
	}
	if errors.Is(err, ErrNotConnected) {
		return true, NeedConnectedNotice
	}
	return true, err.Error()
}
