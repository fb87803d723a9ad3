package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFragment_Empty(t *testing.T) {
	out, ok := SanitizeFragment("")
	assert.True(t, ok)
	assert.Empty(t, out)
}

func TestSanitizeFragment_WellFormedRoundTrips(t *testing.T) {
	out, ok := SanitizeFragment("<b>bold</b> and <i>italic</i>")
	assert.True(t, ok)
	assert.Contains(t, out, "bold")
	assert.Contains(t, out, "italic")
}

func TestSanitizeFragment_PlainTextHasNoTags(t *testing.T) {
	out, ok := SanitizeFragment("just text")
	assert.True(t, ok)
	assert.Equal(t, "just text", out)
}
