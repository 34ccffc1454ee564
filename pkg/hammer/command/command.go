// Package command parses chat-style commands and dispatches them to the handlers registered
// for their name.
package command

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Command is one parsed invocation. Name and arguments never change after construction.
type Command struct {
	name  string
	args  []string
	input string
	raw   string

	// Actor is who issued the command. The dispatcher substitutes Console for nil.
	Actor Actor
	// ChannelID identifies the chat channel the command was typed in, if any.
	ChannelID uuid.UUID
}

// Parse tokenizes input. The first token, without leading '/' or '!', is the lower-cased
// command name. Double quotes group words into one argument.
func Parse(input string) *Command {
	tokens := tokenize(input)
	c := &Command{input: input}
	if len(tokens) == 0 {
		return c
	}
	c.name = NormalizeName(tokens[0])
	c.args = tokens[1:]
	return c
}

// New builds a command from an already split name and arguments.
func New(name string, args ...string) *Command {
	c := &Command{name: NormalizeName(name), args: append([]string(nil), args...)}
	c.input = c.Raw()
	return c
}

// NormalizeName strips command prefixes and folds the name to lower case.
func NormalizeName(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/!")
	return cases.Lower(language.Und).String(name)
}

// tokenize splits on spaces outside double quotes. A quoted section always yields a token,
// even when empty; an unterminated quote runs to the end of the input.
func tokenize(input string) []string {
	var (
		tokens   []string
		current  strings.Builder
		inQuotes bool
		quoted   bool // current token contains a quoted section
	)
	flush := func() {
		if current.Len() > 0 || quoted {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		quoted = false
	}
	for _, r := range input {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			quoted = true
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func (c *Command) Name() string { return c.name }

// Args returns a copy of the arguments.
func (c *Command) Args() []string { return append([]string(nil), c.args...) }

// Arg returns the i-th argument.
func (c *Command) Arg(i int) (string, bool) {
	if i < 0 || i >= len(c.args) {
		return "", false
	}
	return c.args[i], true
}

func (c *Command) NArgs() int { return len(c.args) }

// SubArgs returns the arguments from index from onwards.
func (c *Command) SubArgs(from int) ([]string, error) {
	if from < 0 || from > len(c.args) {
		return nil, eris.Errorf("argument index %d out of range [0, %d]", from, len(c.args))
	}
	return append([]string(nil), c.args[from:]...), nil
}

// Input is the text the command was parsed from.
func (c *Command) Input() string { return c.input }

// Raw renders the command back into canonical form: "/name arg ...", quoting arguments that
// contain whitespace or are empty. Parsing Raw yields the same name and arguments as long as
// no argument contains a double quote.
func (c *Command) Raw() string {
	if c.raw != "" {
		return c.raw
	}
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(c.name)
	for _, arg := range c.args {
		b.WriteByte(' ')
		if arg == "" || strings.ContainsFunc(arg, unicode.IsSpace) {
			b.WriteByte('"')
			b.WriteString(arg)
			b.WriteByte('"')
		} else {
			b.WriteString(arg)
		}
	}
	c.raw = b.String()
	return c.raw
}

// ArgumentsAsString is the input after the command name, exactly as typed apart from the
// separating whitespace, or "" without arguments. Commands built with New use Raw.
func (c *Command) ArgumentsAsString() string {
	if len(c.args) == 0 {
		return ""
	}
	rest := strings.TrimLeftFunc(c.input, unicode.IsSpace)
	i := strings.IndexFunc(rest, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
}

func (c *Command) String() string {
	if c.Actor == nil {
		return c.Raw()
	}
	return "(" + c.Actor.Name() + ") " + c.Raw()
}
