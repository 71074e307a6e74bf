package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a CtxZapLogger that records entries in memory for assertions.
//
//	log := logger.NewTestLogger()
//	b, _ := breaker.New("qdrant", cfg, breaker.WithLogger(log.CtxZapLogger))
//	...
//	assert.True(t, log.HasLog("warn", "circuit opened"))
type TestLogger struct {
	*CtxZapLogger
	logs *observer.ObservedLogs
}

// NewTestLogger records every level from debug up
func NewTestLogger() *TestLogger {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultManagerConfig()
	cfg.EnableStacktrace = false
	return &TestLogger{
		CtxZapLogger: &CtxZapLogger{
			base:   zap.New(core).With(zap.String("module", "test")),
			module: "test",
			config: &cfg,
		},
		logs: logs,
	}
}

// HasLog reports whether an entry with the level and exact message exists
func (t *TestLogger) HasLog(level, message string) bool {
	return t.logs.Filter(func(e observer.LoggedEntry) bool {
		return e.Level.String() == level && e.Message == message
	}).Len() > 0
}

// HasLogWithField reports whether a matching entry carries key=value
func (t *TestLogger) HasLogWithField(level, message, key string, value interface{}) bool {
	for _, e := range t.logs.FilterMessage(message).All() {
		if e.Level.String() != level {
			continue
		}
		if v, ok := e.ContextMap()[key]; ok && v == value {
			return true
		}
	}
	return false
}

// CountLogs counts entries at level
func (t *TestLogger) CountLogs(level string) int {
	return t.logs.Filter(func(e observer.LoggedEntry) bool {
		return e.Level.String() == level
	}).Len()
}

// Messages returns all messages in order
func (t *TestLogger) Messages() []string {
	entries := t.logs.All()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// Entries exposes the raw observed entries
func (t *TestLogger) Entries() []observer.LoggedEntry {
	return t.logs.All()
}

// Clear drops recorded entries
func (t *TestLogger) Clear() {
	t.logs.TakeAll()
}
