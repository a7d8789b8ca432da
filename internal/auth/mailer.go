package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Message is one outgoing sign-in email.
type Message struct {
	To      string
	Subject string
	Body    string
	Link    string
}

// Mailer delivers sign-in emails.
type Mailer interface {
	Send(context.Context, Message) error
}

// Logger is the logging surface used by LogMailer.
type Logger interface {
	Info(msg string, keyvals ...any)
}

// OutboxMailer writes each message as a text file into a directory.
type OutboxMailer struct {
	Dir   string
	Clock func() time.Time
}

// Send writes msg to the outbox directory.
func (m OutboxMailer) Send(_ context.Context, msg Message) error {
	dir := strings.TrimSpace(m.Dir)
	if dir == "" {
		return fmt.Errorf("outbox dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create outbox dir: %w", err)
	}
	clock := m.Clock
	if clock == nil {
		clock = time.Now
	}
	stamp := clock().UTC().Format("20060102T150405.000000000Z")
	safeTo := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_").Replace(strings.ToLower(strings.TrimSpace(msg.To)))
	name := fmt.Sprintf("%s_%s.txt", stamp, safeTo)
	body := fmt.Sprintf("TO: %s\nSUBJECT: %s\n\n%s\n", strings.TrimSpace(msg.To), strings.TrimSpace(msg.Subject), strings.TrimSpace(msg.Body))
	return os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600)
}

// LogMailer writes the sign-in link to the runtime log.
type LogMailer struct {
	Logger Logger
}

// Send logs the link for msg.
func (m LogMailer) Send(_ context.Context, msg Message) error {
	if m.Logger == nil {
		return fmt.Errorf("log mailer has no logger")
	}
	m.Logger.Info("sign-in link issued", "to", msg.To, "link", msg.Link)
	return nil
}
