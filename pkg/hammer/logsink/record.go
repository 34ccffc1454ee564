// Package logsink carries the audit trail produced by command and event dispatch. Every
// dispatch that asks for logging derives one Record and hands it to the registered sinks.
package logsink

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Category classifies a log record for the staff reading it.
type Category uint8

const (
	CategoryInfo Category = iota
	CategoryWarn
	CategoryError
	CategoryCheat // Suspected cheating
	CategoryStaff // Staff and moderation actions
)

func (c Category) String() string {
	switch c {
	case CategoryInfo:
		return "info"
	case CategoryWarn:
		return "warn"
	case CategoryError:
		return "error"
	case CategoryCheat:
		return "cheat"
	case CategoryStaff:
		return "staff"
	default:
		return "unknown"
	}
}

// ParseCategory is the inverse of Category.String. It is case-insensitive.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(s) {
	case "info":
		return CategoryInfo, nil
	case "warn":
		return CategoryWarn, nil
	case "error":
		return CategoryError, nil
	case "cheat":
		return CategoryCheat, nil
	case "staff":
		return CategoryStaff, nil
	default:
		return CategoryInfo, eris.Errorf("unknown log category %q", s)
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Kind tells which dispatcher produced a record.
type Kind string

const (
	KindCommand Kind = "command"
	KindEvent   Kind = "event"
)

// Record is one audit log entry.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Type      string    `json:"type"` // Command name or event type
	Actor     string    `json:"actor,omitempty"`
	Message   string    `json:"message"`
	Category  Category  `json:"category"`
	Important bool      `json:"important"`
	Announce  bool      `json:"announce,omitempty"`
}

// NewRecord stamps a record with a fresh ID and the current time.
func NewRecord(kind Kind, typ, message string) Record {
	return Record{
		ID:      uuid.New(),
		Time:    time.Now(),
		Kind:    kind,
		Type:    typ,
		Message: message,
	}
}
