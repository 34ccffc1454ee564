package logsink

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Logger writes records and exceptions to a zerolog logger. Important records and the error
// and cheat categories are raised to warn level.
type Logger struct {
	log zerolog.Logger
}

var (
	_ Sink          = (*Logger)(nil)
	_ ExceptionSink = (*Logger)(nil)
)

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) OnLogEntry(rec Record) {
	level := zerolog.InfoLevel
	if rec.Important || rec.Category == CategoryError || rec.Category == CategoryCheat {
		level = zerolog.WarnLevel
	}
	l.log.WithLevel(level).
		Str("kind", string(rec.Kind)).
		Str("type", rec.Type).
		Str("actor", rec.Actor).
		Stringer("category", rec.Category).
		Bool("important", rec.Important).
		Msg(rec.Message)
}

func (l *Logger) OnException(reason string, err error) {
	ev := l.log.Error()
	for key, value := range Tags(err) {
		ev = ev.Str(key, value)
	}
	ev.Str("stack", eris.ToString(err, true)).Msg(reason)
}
