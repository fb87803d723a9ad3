package wire

import "strings"

// ellipsis marks a truncated sub-line and the leading continuation
// token of the sub-line that follows it.
const ellipsis = "..."

// Frame splits one logical line into legacy wire sub-lines addressed
// to target from nick!user@host, so that every emitted frame
// ":nick!user@host PRIVMSG target :<subline>\r\n" stays within the
// legacy protocol's 512-byte limit.
//
// Splitting is greedy and word-preserving: concatenating the
// sub-lines after stripping leading/trailing ellipsis markers
// reconstructs the original whitespace-separated tokens in order.
func Frame(nick, user, host, target, line string) []string {
	template := ":" + nick + "!" + user + "@" + host + " PRIVMSG " + target + " :\r\n"
	budget := 512 - len(template)

	var out []string
	var words []string

	for _, word := range strings.Split(line, " ") {
		words = append(words, word)
		joined := strings.Join(words, " ")

		if len(joined)+len(ellipsis) > budget {
			words = words[:len(words)-1]
			out = append(out, strings.Join(words, " ")+ellipsis)
			words = []string{ellipsis, word}
		}
	}
	out = append(out, strings.Join(words, " "))

	return out
}
