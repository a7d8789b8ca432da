// Package auth implements passwordless sign-in through one-time email links.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/domain"
)

// Default lifetimes.
const (
	DefaultLinkTTL    = 15 * time.Minute
	DefaultSessionTTL = 30 * 24 * time.Hour
)

var (
	// ErrInvalidCode reports an unknown, used, or expired sign-in code.
	ErrInvalidCode = errors.New("invalid or expired sign-in code")
	// ErrUnauthenticated reports a missing, unknown, or expired session token.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrInvalidReturnURL reports a return URL that is not absolute.
	ErrInvalidReturnURL = errors.New("invalid return url")
)

// Session is a signed-in session handed to the client.
type Session struct {
	Token     string
	User      domain.User
	ExpiresAt time.Time
}

// Gateway is the auth boundary used by the web surface and the CLI.
type Gateway interface {
	CurrentUser(ctx context.Context, token string) (domain.User, error)
	RequestSignInLink(ctx context.Context, email, returnURL string) error
	ExchangeCode(ctx context.Context, code string) (Session, error)
	SignOut(ctx context.Context, token string) error
}

// SignInCode is a stored one-time code. Only the hash of the code is kept.
type SignInCode struct {
	Hash      string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRecord is a stored session. Only the hash of the token is kept.
type SessionRecord struct {
	Hash      string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists users, one-time codes, and sessions.
type Store interface {
	// EnsureUser returns the user with the same email, inserting u when none exists.
	EnsureUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	CreateSignInCode(ctx context.Context, code SignInCode) error
	// ConsumeSignInCode deletes the code and returns it. Missing codes yield app.ErrNotFound.
	ConsumeSignInCode(ctx context.Context, hash string) (SignInCode, error)
	CreateSession(ctx context.Context, s SessionRecord) error
	GetSession(ctx context.Context, hash string) (SessionRecord, error)
	DeleteSession(ctx context.Context, hash string) error
}

// Config holds configuration for the magic-link gateway.
type Config struct {
	LinkTTL    time.Duration
	SessionTTL time.Duration
}

// MagicLinkGateway issues one-time sign-in links and exchanges them for sessions.
type MagicLinkGateway struct {
	store   Store
	mailer  Mailer
	idGen   app.IDGenerator
	clock   app.Clock
	random  io.Reader
	linkTTL time.Duration
	sessTTL time.Duration
}

// NewMagicLinkGateway constructs a new value for this package.
func NewMagicLinkGateway(store Store, mailer Mailer, idGen app.IDGenerator, clock app.Clock, cfg Config) *MagicLinkGateway {
	if clock == nil {
		clock = time.Now
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &MagicLinkGateway{
		store:   store,
		mailer:  mailer,
		idGen:   idGen,
		clock:   clock,
		random:  rand.Reader,
		linkTTL: cfg.LinkTTL,
		sessTTL: cfg.SessionTTL,
	}
}

// RequestSignInLink mails a one-time link to email. The link is returnURL with a code query parameter.
func (g *MagicLinkGateway) RequestSignInLink(ctx context.Context, email, returnURL string) error {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}
	link, err := url.Parse(strings.TrimSpace(returnURL))
	if err != nil || !link.IsAbs() {
		return ErrInvalidReturnURL
	}
	code, err := g.newSecret()
	if err != nil {
		return fmt.Errorf("generate sign-in code: %w", err)
	}
	now := g.clock().UTC()
	if err := g.store.CreateSignInCode(ctx, SignInCode{
		Hash:      hashSecret(code),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(g.linkTTL),
	}); err != nil {
		return fmt.Errorf("store sign-in code: %w", err)
	}
	q := link.Query()
	q.Set("code", code)
	link.RawQuery = q.Encode()
	if err := g.mailer.Send(ctx, Message{
		To:      email,
		Subject: "Your Sift sign-in link",
		Body:    fmt.Sprintf("Open this link to sign in:\n\n%s\n\nThe link works once and expires in %s.", link.String(), g.linkTTL),
		Link:    link.String(),
	}); err != nil {
		return fmt.Errorf("send sign-in link: %w", err)
	}
	return nil
}

// ExchangeCode redeems a one-time code for a new session. Codes are single use.
func (g *MagicLinkGateway) ExchangeCode(ctx context.Context, code string) (Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, ErrInvalidCode
	}
	stored, err := g.store.ConsumeSignInCode(ctx, hashSecret(code))
	if errors.Is(err, app.ErrNotFound) {
		return Session{}, ErrInvalidCode
	}
	if err != nil {
		return Session{}, fmt.Errorf("consume sign-in code: %w", err)
	}
	now := g.clock().UTC()
	if !now.Before(stored.ExpiresAt) {
		return Session{}, ErrInvalidCode
	}
	candidate, err := domain.NewUser(g.newUserID(), stored.Email, now)
	if err != nil {
		return Session{}, err
	}
	user, err := g.store.EnsureUser(ctx, candidate)
	if err != nil {
		return Session{}, fmt.Errorf("ensure user: %w", err)
	}
	token, err := g.newSecret()
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	expires := now.Add(g.sessTTL)
	if err := g.store.CreateSession(ctx, SessionRecord{
		Hash:      hashSecret(token),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: expires,
	}); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return Session{Token: token, User: user, ExpiresAt: expires}, nil
}

// CurrentUser resolves a session token to its user.
func (g *MagicLinkGateway) CurrentUser(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrUnauthenticated
	}
	hash := hashSecret(token)
	sess, err := g.store.GetSession(ctx, hash)
	if errors.Is(err, app.ErrNotFound) {
		return domain.User{}, ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load session: %w", err)
	}
	if !g.clock().UTC().Before(sess.ExpiresAt) {
		_ = g.store.DeleteSession(ctx, hash)
		return domain.User{}, ErrUnauthenticated
	}
	user, err := g.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, app.ErrNotFound) {
		return domain.User{}, ErrUnauthenticated
	}
	return user, err
}

// SignOut invalidates the session. Unknown tokens are not an error.
func (g *MagicLinkGateway) SignOut(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	err := g.store.DeleteSession(ctx, hashSecret(token))
	if errors.Is(err, app.ErrNotFound) {
		return nil
	}
	return err
}

func (g *MagicLinkGateway) newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (g *MagicLinkGateway) newUserID() string {
	if g.idGen == nil {
		return ""
	}
	return g.idGen()
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
