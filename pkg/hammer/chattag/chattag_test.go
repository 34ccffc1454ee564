package chattag_test

import (
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer/chattag"
	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		newLine bool
		want    string
	}{
		{name: "no tags", in: "plain text", want: "plain text"},
		{name: "leading colour", in: chattag.Red + " alert", want: "alert"},
		{name: "colour between words", in: "hello" + chattag.Green + " world", want: "hello world"},
		{name: "adjacent colours", in: "a" + chattag.Red + chattag.Blue + " b", want: "a b"},
		{name: "line to newline", in: "one" + chattag.NewLine + " two", newLine: true, want: "one\ntwo"},
		{name: "line to space", in: "one" + chattag.NewLine + " two", want: "one two"},
		{name: "lower case tags", in: "x <rgb:1,1,1> y <line> z", newLine: true, want: "x y\nz"},
		{name: "unknown bracket kept", in: "i <3 go", want: "i <3 go"},
		{name: "unterminated tag kept", in: "broken <RGB:1", want: "broken <RGB:1"},
		{name: "trailing tag", in: "done" + chattag.White, want: "done"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, chattag.Strip(tc.in, tc.newLine))
		})
	}
}

func TestColor(t *testing.T) {
	t.Parallel()

	tag, ok := chattag.Color("Light-Green")
	assert.True(t, ok)
	assert.Equal(t, chattag.LightGreen, tag)

	_, ok = chattag.Color("octarine")
	assert.False(t, ok)

	names := chattag.Names()
	assert.Len(t, names, 24)
	assert.IsIncreasing(t, names)
}

func TestListColors(t *testing.T) {
	t.Parallel()

	stripped := chattag.Strip(chattag.ListColors(), true)
	assert.Contains(t, stripped, "Colors:\n")
	assert.Contains(t, stripped, "[light-green]")
	assert.NotContains(t, stripped, "<RGB")
}
