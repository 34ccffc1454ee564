// Package chattag holds the in-game chat markup: colour tags and line breaks. Players' chat
// windows render the tags; consoles get the text back with the tags stripped.
package chattag

import (
	"slices"
	"strings"
)

// Colour tags carry a leading space so they can be concatenated directly onto text.
const (
	White       = " <RGB:1,1,1>"
	LightGray   = " <RGB:0.7,0.7,0.7>"
	DarkGray    = " <RGB:0.3,0.3,0.3>"
	Black       = " <RGB:0,0,0>"
	LightRed    = " <RGB:1,0.6,0.6>"
	Red         = " <RGB:1,0.25,0.25>"
	DarkRed     = " <RGB:0.6,0,0>"
	Beige       = " <RGB:1,0.65,0.38>"
	Orange      = " <RGB:1,0.45,0.18>"
	Brown       = " <RGB:0.6,0.2,0.1>"
	LightYellow = " <RGB:1,1,0.8>"
	Yellow      = " <RGB:1,1,0.25>"
	DarkYellow  = " <RGB:0.6,0.6,0>"
	LightGreen  = " <RGB:0.6,1,0.6>"
	Green       = " <RGB:0.25,1,0.25>"
	DarkGreen   = " <RGB:0,0.6,0>"
	LightBlue   = " <RGB:0.6,1,1>"
	Blue        = " <RGB:0.25,1,1>"
	DarkBlue    = " <RGB:0.25,0.25,1>"
	Indigo      = " <RGB:0.5,0.5,1>"
	LightPurple = " <RGB:1,0.6,1>"
	Purple      = " <RGB:1,0.25,1>"
	DarkPurple  = " <RGB:0.6,0,0.6>"
	Pink        = " <RGB:1,0.45,1>"

	NewLine = " <LINE>"
)

var colors = map[string]string{ //nolint:gochecknoglobals // read-only lookup table
	"white":        White,
	"light-gray":   LightGray,
	"dark-gray":    DarkGray,
	"black":        Black,
	"light-red":    LightRed,
	"red":          Red,
	"dark-red":     DarkRed,
	"beige":        Beige,
	"orange":       Orange,
	"brown":        Brown,
	"light-yellow": LightYellow,
	"yellow":       Yellow,
	"dark-yellow":  DarkYellow,
	"light-green":  LightGreen,
	"green":        Green,
	"dark-green":   DarkGreen,
	"light-blue":   LightBlue,
	"blue":         Blue,
	"dark-blue":    DarkBlue,
	"indigo":       Indigo,
	"light-purple": LightPurple,
	"purple":       Purple,
	"dark-purple":  DarkPurple,
	"pink":         Pink,
}

// Color returns the tag for a colour name such as "light-green". Names are case-insensitive.
func Color(name string) (string, bool) {
	tag, ok := colors[strings.ToLower(name)]
	return tag, ok
}

// Names returns every known colour name in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(colors))
	for name := range colors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListColors renders every colour name in its own colour.
func ListColors() string {
	var b strings.Builder
	b.WriteString("Colors:")
	b.WriteString(NewLine)
	for _, name := range Names() {
		b.WriteString(colors[name])
		b.WriteString(" [" + name + "]")
	}
	b.WriteString(White)
	b.WriteString(NewLine)
	return b.String()
}

// Strip removes colour and line tags from text. A tag swallows one space on each side; line
// tags become '\n' when newLine is set. Words separated only by a tag keep a single space.
// Anything in angle brackets that is not a known tag is left alone.
func Strip(text string, newLine bool) string {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); {
		if text[i] == '<' {
			end := strings.IndexByte(text[i:], '>')
			if end > 0 {
				tag := text[i+1 : i+end]
				isLine := strings.EqualFold(tag, "line")
				if isLine || isColorTag(tag) {
					if n := len(out); n > 0 && out[n-1] == ' ' {
						out = out[:n-1]
					}
					i += end + 1
					if i < len(text) && text[i] == ' ' {
						i++
					}
					if isLine && newLine {
						out = append(out, '\n')
					} else if needsSeparator(out, text, i) {
						out = append(out, ' ')
					}
					continue
				}
			}
		}
		out = append(out, text[i])
		i++
	}
	return string(out)
}

func isColorTag(tag string) bool {
	return len(tag) > 4 && strings.EqualFold(tag[:4], "rgb:")
}

func needsSeparator(out []byte, text string, next int) bool {
	if len(out) == 0 || next >= len(text) {
		return false
	}
	switch out[len(out)-1] {
	case ' ', '\n':
		return false
	}
	switch text[next] {
	case ' ', '\n', '<':
		return false
	}
	return true
}
