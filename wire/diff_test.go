package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineDiff(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want *string
	}{
		{
			name: "substitution in the middle",
			a:    "the quick brown fox",
			b:    "the quick red fox",
			want: strPtr("* red"),
		},
		{
			name: "pure removal",
			a:    "the quick brown fox jumps",
			b:    "the quick fox jumps",
			want: strPtr("-brown"),
		},
		{
			name: "pure addition",
			a:    "the quick fox jumps",
			b:    "the quick brown fox jumps",
			want: strPtr("+brown"),
		},
		{
			name: "identical lines",
			a:    "nothing changed here",
			b:    "nothing changed here",
			want: nil,
		},
		{
			name: "whitespace normalization only",
			a:    "one  two   three",
			b:    "one two three",
			want: nil,
		},
		{
			name: "entirely different",
			a:    "alpha beta",
			b:    "gamma delta",
			want: strPtr("* gamma delta"),
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := LineDiff(tt.a, tt.b)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}
