package domain

import (
	"strings"
	"time"
)

// User is a signed-in account identified by email.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// NormalizeEmail trims and lower-cases an address and checks its basic shape.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", ErrInvalidEmail
	}
	if !strings.Contains(email[at+1:], ".") && email[at+1:] != "localhost" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NewUser constructs a user with a normalized email.
func NewUser(id, email string, now time.Time) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidID
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: normalized, CreatedAt: now.UTC()}, nil
}
