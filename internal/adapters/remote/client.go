// Package remote implements the todo repository over the Sift JSON API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

const apiPrefix = "/api/v1"

// maxResponseBytes bounds decoded response bodies.
const maxResponseBytes = 4 << 20

// ErrRejected reports a request the server refused as invalid.
var ErrRejected = errors.New("request rejected")

// Client talks to one Sift server on behalf of one signed-in user.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ app.TodoRepository = (*Client)(nil)

// Error is a structured failure returned by the server.
type Error struct {
	Status  int
	Code    string
	Message string
	Hint    string
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%d)", e.Code, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap maps the server error code to the matching local sentinel.
func (e *Error) Unwrap() error {
	switch e.Code {
	case "unauthenticated":
		return auth.ErrUnauthenticated
	case "not_found":
		return app.ErrNotFound
	case "invalid_request":
		return ErrRejected
	default:
		return nil
	}
}

// NewClient builds a client for baseURL. token may be empty for sign-in calls.
// A nil httpClient uses a client with no timeout; callers bound requests by context.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("remote url %q must be an absolute http(s) url", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		token:   strings.TrimSpace(token),
		client:  httpClient,
	}, nil
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	next := *c
	next.token = strings.TrimSpace(token)
	return &next
}

// ListTodos returns every todo of the signed-in user in position order.
func (c *Client) ListTodos(ctx context.Context) ([]domain.Todo, error) {
	var out struct {
		Todos []common.Todo `json:"todos"`
	}
	if err := c.do(ctx, http.MethodGet, "/todos", nil, &out); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	todos := make([]domain.Todo, 0, len(out.Todos))
	for _, t := range out.Todos {
		todos = append(todos, t.Domain(""))
	}
	return todos, nil
}

// AddTodo stores a new todo.
func (c *Client) AddTodo(ctx context.Context, in app.AddTodoInput) (domain.Todo, error) {
	var out common.Todo
	err := c.do(ctx, http.MethodPost, "/todos", common.AddTodoRequest{
		Content:    in.Content,
		Pane:       string(in.Pane),
		Position:   in.Position,
		WaitingFor: in.WaitingFor,
	}, &out)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("add todo: %w", err)
	}
	return out.Domain(""), nil
}

// SetTodoCompleted sets the completion state of one todo.
func (c *Client) SetTodoCompleted(ctx context.Context, id string, completed bool) (domain.Todo, error) {
	return c.patch(ctx, id, common.UpdateTodoRequest{Completed: &completed})
}

// EditTodo replaces the content of one todo.
func (c *Client) EditTodo(ctx context.Context, id, content string) (domain.Todo, error) {
	return c.patch(ctx, id, common.UpdateTodoRequest{Content: &content})
}

// DeleteTodo removes one todo.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return nil
}

// RequestSignInLink asks the server to email a sign-in link.
func (c *Client) RequestSignInLink(ctx context.Context, email string) error {
	if err := c.do(ctx, http.MethodPost, "/sign_in", common.SignInRequest{Email: email}, nil); err != nil {
		return fmt.Errorf("request sign-in link: %w", err)
	}
	return nil
}

// ExchangeCode redeems a one-time code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (common.Session, error) {
	var out common.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", common.ExchangeCodeRequest{Code: code}, &out); err != nil {
		return common.Session{}, fmt.Errorf("exchange code: %w", err)
	}
	return out, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (common.User, error) {
	var out common.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return common.User{}, fmt.Errorf("current user: %w", err)
	}
	return out, nil
}

// SignOut revokes the client's session.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/sessions", nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) patch(ctx context.Context, id string, req common.UpdateTodoRequest) (domain.Todo, error) {
	var out common.Todo
	if err := c.do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), req, &out); err != nil {
		return domain.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	return out.Domain(""), nil
}

// do sends one request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	limited := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, limited)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body io.Reader) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Hint    string `json:"hint"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(body)
	if err := json.Unmarshal(raw, &env); err != nil || env.Error.Code == "" {
		code := "http_error"
		if status == http.StatusUnauthorized {
			code = "unauthenticated"
		}
		return &Error{Status: status, Code: code, Message: strings.TrimSpace(string(raw))}
	}
	return &Error{
		Status:  status,
		Code:    env.Error.Code,
		Message: env.Error.Message,
		Hint:    env.Error.Hint,
	}
}

// Session is the locally saved remote session.
type Session struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session can still be used at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}
