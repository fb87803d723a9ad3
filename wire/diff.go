package wire

import "strings"

// LineDiff computes a word-level edit summary between the previously
// rendered line a and the newly rendered line b, following the legacy
// network's informal edit convention. It returns nil when there is
// nothing to say (the lines are identical once the common
// prefix/suffix are removed).
func LineDiff(a, b string) *string {
	aw := strings.Fields(a)
	bw := strings.Fields(b)

	mlen := len(aw)
	if len(bw) < mlen {
		mlen = len(bw)
	}

	pre := 0
	for i := 0; i < mlen; i++ {
		if aw[i] != bw[i] {
			break
		}
		pre = i + 1
	}

	post := 0
	for i := 1; i <= mlen; i++ {
		if aw[len(aw)-i] != bw[len(bw)-i] {
			break
		}
		post = i
	}

	rem := middle(aw, pre, post)
	add := middle(bw, pre, post)

	switch {
	case len(add) == 0 && len(rem) > 0:
		s := "-" + strings.Join(rem, " ")
		return &s
	case len(rem) == 0 && len(add) > 0:
		s := "+" + strings.Join(add, " ")
		return &s
	case len(add) > 0:
		s := "* " + strings.Join(add, " ")
		return &s
	default:
		return nil
	}
}

// middle returns s[pre:len(s)-post], clamped to an empty slice when
// the prefix and suffix counts overlap (possible when a and b share a
// short repeated token at both ends).
func middle(s []string, pre, post int) []string {
	end := len(s) - post
	if end < pre {
		end = pre
	}
	return s[pre:end]
}
