// Package logging provides the leveled logger used across zdb. Entries are written as JSON lines,
// or as colored single lines when the output is a terminal.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/term"
)

const (
	fileMode    = 0644
	traceIDKey  = "__trace_id__"
	callerDepth = 2
)

// PrettyPrint is implemented by log payloads that know how to render themselves on a terminal.
type PrettyPrint interface {
	PrettyPrint(writer io.Writer)
}

// Logger is the logging surface used by zdb packages.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Log(args ...any)
	Logf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Notice(args ...any)
	Noticef(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	ChangeLevel(level Level)
}

type logger struct {
	level      Level
	normalOut  io.Writer
	errorOut   io.Writer
	isTerminal bool
	lock       chan struct{}
	exit       func(code int)
}

type logEntry struct {
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
	Message any       `json:"message"`
	TraceID string    `json:"trace_id,omitempty"`
	Caller  string    `json:"caller,omitempty"`
}

// NewLogger returns a logger writing to stdout, and to stderr for ERROR and FATAL entries.
func NewLogger(level Level) Logger {
	return newLogger(level, os.Stdout, os.Stderr, isTerminal(os.Stdout))
}

// NewFileLogger returns a logger appending every entry to the file at path. An empty path, or a
// file that cannot be opened, yields a logger that discards everything.
func NewFileLogger(path string) Logger {
	if path == "" {
		return newLogger(INFO, io.Discard, io.Discard, false)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return newLogger(INFO, io.Discard, io.Discard, false)
	}

	return newLogger(INFO, f, f, false)
}

// NewWriterLogger returns a logger sending every entry, whatever its level, to w as JSON.
func NewWriterLogger(level Level, w io.Writer) Logger {
	return newLogger(level, w, w, false)
}

func newLogger(level Level, normalOut, errorOut io.Writer, terminal bool) *logger {
	l := &logger{
		level:      level,
		normalOut:  normalOut,
		errorOut:   errorOut,
		isTerminal: terminal,
		lock:       make(chan struct{}, 1),
		exit:       os.Exit,
	}

	return l
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (l *logger) logf(level Level, format string, args ...any) {
	l.logfWithSkip(callerDepth+1, level, format, args...)
}

func (l *logger) logfWithSkip(skip int, level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	out := l.normalOut
	if level >= ERROR {
		out = l.errorOut
	}

	entry := logEntry{
		Level: level,
		Time:  time.Now(),
	}

	if _, file, line, ok := runtime.Caller(skip); ok {
		entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	args, entry.TraceID = extractTraceID(args)

	switch {
	case len(args) == 1 && format == "":
		entry.Message = args[0]
	case len(args) != 1 && format == "":
		entry.Message = args
	case format != "":
		entry.Message = fmt.Sprintf(format, args...)
	}

	l.lock <- struct{}{}
	defer func() { <-l.lock }()

	if l.isTerminal {
		l.prettyPrint(entry, out)

		return
	}

	_ = json.NewEncoder(out).Encode(entry)
}

func extractTraceID(args []any) ([]any, string) {
	if len(args) == 0 {
		return args, ""
	}

	if m, ok := args[len(args)-1].(map[string]any); ok {
		if id, ok := m[traceIDKey].(string); ok {
			return args[:len(args)-1], id
		}
	}

	return args, ""
}

func (*logger) prettyPrint(e logEntry, out io.Writer) {
	fmt.Fprintf(out, "\u001B[38;5;%dm%s\u001B[0m [%s] ", e.Level.color(), e.Level.String()[0:4],
		e.Time.Format(time.TimeOnly))

	if e.TraceID != "" {
		fmt.Fprintf(out, "\u001B[38;5;8m%s\u001B[0m ", e.TraceID)
	}

	switch msg := e.Message.(type) {
	case PrettyPrint:
		msg.PrettyPrint(out)
	case string:
		fmt.Fprintf(out, "%s\n", msg)
	default:
		fmt.Fprintf(out, "%v\n", msg)
	}
}

func (l *logger) Debug(args ...any)                  { l.logf(DEBUG, "", args...) }
func (l *logger) Debugf(format string, args ...any)  { l.logf(DEBUG, format, args...) }
func (l *logger) Log(args ...any)                    { l.logf(INFO, "", args...) }
func (l *logger) Logf(format string, args ...any)    { l.logf(INFO, format, args...) }
func (l *logger) Info(args ...any)                   { l.logf(INFO, "", args...) }
func (l *logger) Infof(format string, args ...any)   { l.logf(INFO, format, args...) }
func (l *logger) Notice(args ...any)                 { l.logf(NOTICE, "", args...) }
func (l *logger) Noticef(format string, args ...any) { l.logf(NOTICE, format, args...) }
func (l *logger) Warn(args ...any)                   { l.logf(WARN, "", args...) }
func (l *logger) Warnf(format string, args ...any)   { l.logf(WARN, format, args...) }
func (l *logger) Error(args ...any)                  { l.logf(ERROR, "", args...) }
func (l *logger) Errorf(format string, args ...any)  { l.logf(ERROR, format, args...) }

func (l *logger) Fatal(args ...any) {
	l.logf(FATAL, "", args...)
	l.exit(1)
}

func (l *logger) Fatalf(format string, args ...any) {
	l.logf(FATAL, format, args...)
	l.exit(1)
}

func (l *logger) ChangeLevel(level Level) {
	l.level = level
}
