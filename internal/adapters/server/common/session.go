package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

// SessionCookieName is the browser cookie that carries the session token.
const SessionCookieName = "sift_session"

type userContextKey struct{}

// RequestToken extracts the session token from a bearer header or the session cookie.
func RequestToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// Authenticate resolves the request's session to a user.
func Authenticate(ctx context.Context, gateway auth.Gateway, r *http.Request) (domain.User, error) {
	if gateway == nil {
		return domain.User{}, fmt.Errorf("authenticate: %w", ErrUnauthenticated)
	}
	user, err := gateway.CurrentUser(ctx, RequestToken(r))
	if errors.Is(err, auth.ErrUnauthenticated) {
		return domain.User{}, fmt.Errorf("authenticate: %w", errors.Join(ErrUnauthenticated, err))
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}
	return user, nil
}

// WithUser stores the signed-in user in ctx.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the signed-in user stored by WithUser.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok && user.ID != ""
}
