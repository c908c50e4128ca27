// Package logger provides logging implementations.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/user/watermark/pkg/ports"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
)

// ConsoleLogger writes translated messages line by line. Batch workers
// share one logger, so writes are serialized to keep lines whole.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	runID     string
	color     bool
	out       io.Writer
	errOut    io.Writer
	mu        *sync.Mutex
}

// NewConsole creates a console logger writing info and debug to stdout and
// warnings and errors to stderr. Color is enabled when stdout is a terminal.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return NewConsoleWriter(level, os.Stdout, os.Stderr, color)
}

// NewConsoleWriter creates a console logger over arbitrary writers.
func NewConsoleWriter(level ports.LogLevel, out, errOut io.Writer, color bool) *ConsoleLogger {
	return &ConsoleLogger{
		level:  level,
		color:  color,
		out:    out,
		errOut: errOut,
		mu:     &sync.Mutex{},
	}
}

// WithRunID returns a logger that tags every line with the first eight
// characters of id.
func (l *ConsoleLogger) WithRunID(id string) *ConsoleLogger {
	c := *l
	if len(id) > 8 {
		id = id[:8]
	}
	c.runID = id
	return &c
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	l.log(ports.LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	l.log(ports.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.log(ports.LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	l.log(ports.LevelError, msg, args...)
}

// Success logs an informational message highlighted in green.
func (l *ConsoleLogger) Success(msg string, args ...interface{}) {
	if l.level > ports.LevelInfo {
		return
	}
	line := l10n.F(msg, args...)
	if l.color {
		line = colorGreen + line + colorReset
	}
	l.write(l.out, l.prefix()+line)
}

// WithComponent returns a new logger with the specified component name.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	c := *l
	c.component = component
	return &c
}

func (l *ConsoleLogger) prefix() string {
	if l.runID == "" {
		return ""
	}
	return l.runID + " "
}

// log formats and writes one line if level is enabled.
func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	if l.level > level {
		return
	}

	translated := l10n.F(msg, args...)

	output := translated
	if l.component != "" {
		if l.color {
			output = fmt.Sprintf("%s[%s]%s %s", colorCyan, l.component, colorReset, translated)
		} else {
			output = fmt.Sprintf("[%s] %s", l.component, translated)
		}
	}

	if l.color {
		switch level {
		case ports.LevelDebug:
			output = colorGray + output + colorReset
		case ports.LevelWarn:
			output = colorYellow + output + colorReset
		case ports.LevelError:
			output = colorRed + output + colorReset
		}
	}

	w := l.out
	if level >= ports.LevelWarn {
		w = l.errOut
	}
	l.write(w, l.prefix()+output)
}

func (l *ConsoleLogger) write(w io.Writer, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(w, line)
}

var _ ports.Logger = (*ConsoleLogger)(nil)
