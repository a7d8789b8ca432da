package tui

import "time"

// defaultRequestTimeout bounds each store call issued by the board.
const defaultRequestTimeout = 10 * time.Second

// Logger receives store failures and other diagnostics. The board never shows them.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// ClipboardFunc writes text to the system clipboard.
type ClipboardFunc func(string) error

type Option func(*Model)

// WithLogger routes diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithUserID sets the owner stamped on provisional todos.
func WithUserID(userID string) Option {
	return func(m *Model) {
		m.userID = userID
	}
}

// WithRequestTimeout bounds each store call. Non-positive values keep the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write ClipboardFunc) Option {
	return func(m *Model) {
		if write != nil {
			m.clipboard = write
		}
	}
}

// WithClock replaces the time source used for local completion stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
