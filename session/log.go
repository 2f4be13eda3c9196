package session

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Verbosity selects which messages a Logger prints. The zero value selects
// Warning.
type Verbosity int

const (
	Quiet Verbosity = iota + 1
	Info
	Warning
	Debug
)

func (v Verbosity) String() string {
	switch v {
	case Quiet:
		return "quiet"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet":
		return Quiet, nil
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "debug":
		return Debug, nil
	}
	return Quiet, fmt.Errorf("unknown verbosity %q", s)
}

// Logger prints messages up to its verbosity.
type Logger struct {
	verbosity Verbosity
	logger    *log.Logger
}

func NewLogger(w io.Writer, verbosity Verbosity) *Logger {
	if w == nil {
		w = os.Stderr
	}
	if verbosity == 0 {
		verbosity = Warning
	}
	return &Logger{
		verbosity: verbosity,
		logger:    log.New(w, "", 0),
	}
}

func (l *Logger) printf(verbosity Verbosity, prefix string, format string, args ...any) {
	if l.verbosity >= verbosity {
		l.logger.Printf(prefix+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.printf(Info, "", format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.printf(Warning, "warning: ", format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.printf(Debug, "debug: ", format, args...)
}
