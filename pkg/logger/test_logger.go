package logger

import (
	"fmt"
	"strings"
	"sync"
)

// LogMessage is one captured call
type LogMessage struct {
	Level   string
	Message string
	// Fields holds the logger's bound fields merged with the call's own
	Fields map[string]interface{}
	Error  error
}

// TestLogger records every message for assertions. Children created with
// the With* methods share the parent's record.
type TestLogger struct {
	rec    *record
	fields map[string]interface{}
	err    error
}

type record struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewTestLogger creates an empty TestLogger
func NewTestLogger() *TestLogger {
	return &TestLogger{rec: &record{}}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &TestLogger{rec: l.rec, fields: merge(l.fields, fields), err: l.err}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &TestLogger{rec: l.rec, fields: l.fields, err: err}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.messages = append(l.rec.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merge(l.fields, fields),
		Error:   l.err,
	})
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (l *TestLogger) each(fn func(LogMessage) bool) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	for _, m := range l.rec.messages {
		if !fn(m) {
			return
		}
	}
}

// GetMessages returns a copy of every captured message
func (l *TestLogger) GetMessages() []LogMessage {
	var out []LogMessage
	l.each(func(m LogMessage) bool {
		out = append(out, m)
		return true
	})
	return out
}

// GetMessagesByLevel returns the messages logged at level ("DEBUG", "INFO", "WARN", "ERROR")
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var out []LogMessage
	l.each(func(m LogMessage) bool {
		if m.Level == level {
			out = append(out, m)
		}
		return true
	})
	return out
}

// FindMessage returns the first message whose text is exactly text
func (l *TestLogger) FindMessage(text string) (LogMessage, bool) {
	var found LogMessage
	ok := false
	l.each(func(m LogMessage) bool {
		if m.Message == text {
			found, ok = m, true
			return false
		}
		return true
	})
	return found, ok
}

// HasMessage reports whether text was logged at any level
func (l *TestLogger) HasMessage(text string) bool {
	_, ok := l.FindMessage(text)
	return ok
}

// HasMessageContaining reports whether any message contains substr
func (l *TestLogger) HasMessageContaining(substr string) bool {
	found := false
	l.each(func(m LogMessage) bool {
		found = strings.Contains(m.Message, substr)
		return !found
	})
	return found
}

func (l *TestLogger) HasWarning() bool { return len(l.GetMessagesByLevel("WARN")) > 0 }
func (l *TestLogger) HasError() bool   { return len(l.GetMessagesByLevel("ERROR")) > 0 }

// String renders the record one message per line, for failure output
func (l *TestLogger) String() string {
	var b strings.Builder
	l.each(func(m LogMessage) bool {
		fmt.Fprintf(&b, "[%s] %s", m.Level, m.Message)
		if len(m.Fields) > 0 {
			fmt.Fprintf(&b, " fields=%v", m.Fields)
		}
		if m.Error != nil {
			fmt.Fprintf(&b, " error=%v", m.Error)
		}
		b.WriteByte('\n')
		return true
	})
	return b.String()
}
