// Package web serves the browser sign-in flow and a read-only board page.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Callback error codes placed in the login page query string.
const (
	ErrorExchangeFailed = "exchange_failed"
	ErrorNoCode         = "no_code"
)

// Config captures web surface configuration.
type Config struct {
	// BaseURL is the externally reachable origin used to build callback links.
	BaseURL      string
	CookieSecure bool
}

// Logger receives request failures that are not shown to the user.
type Logger interface {
	Warn(msg string, keyvals ...any)
}

// Handler serves `/login`, `/auth/callback`, `/logout`, and `/`.
type Handler struct {
	cfg     Config
	gateway auth.Gateway
	todos   common.TodoService
	logger  Logger
	tmpl    *template.Template
	mux     *http.ServeMux
}

type loginVM struct {
	Title         string
	Email         string
	Next          string
	FieldError    string
	CallbackError string
}

type paneVM struct {
	Shortcut string
	Title    string
	Todos    []todoVM
}

type todoVM struct {
	Content    string
	WaitingFor string
	Done       bool
}

type boardVM struct {
	Title string
	Email string
	Panes []paneVM
}

// NewHandler constructs the web handler. logger may be nil.
func NewHandler(cfg Config, gateway auth.Gateway, todos common.TodoService, logger Logger) (*Handler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("auth gateway is required")
	}
	if todos == nil {
		return nil, fmt.Errorf("todo service is required")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("web base url %q must be absolute", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(base.String(), "/")

	tmpl, err := template.New("base").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse web templates: %w", err)
	}

	h := &Handler{
		cfg:     cfg,
		gateway: gateway,
		todos:   todos,
		logger:  logger,
		tmpl:    tmpl,
		mux:     http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /login", h.handleLoginGet)
	h.mux.HandleFunc("POST /login", h.handleLoginPost)
	h.mux.HandleFunc("GET /auth/callback", h.handleCallback)
	h.mux.HandleFunc("POST /logout", h.handleLogout)
	h.mux.HandleFunc("GET /{$}", h.handleBoard)
	return h, nil
}

// ServeHTTP routes one browser request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.render(w, http.StatusOK, "login.html", loginVM{
		Title:         "Sign in · Sift",
		Next:          safeNext(q.Get("next")),
		CallbackError: strings.TrimSpace(q.Get("error")),
	})
}

func (h *Handler) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	next := safeNext(r.PostForm.Get("next"))
	vm := loginVM{Title: "Sign in · Sift", Email: email, Next: next}

	err := h.gateway.RequestSignInLink(r.Context(), email, h.callbackURL(next))
	switch {
	case err == nil:
		h.render(w, http.StatusOK, "login_sent.html", loginVM{Title: "Check your email · Sift", Email: email})
	case errors.Is(err, domain.ErrInvalidEmail):
		vm.FieldError = "Enter a valid email address."
		h.render(w, http.StatusUnprocessableEntity, "login.html", vm)
	default:
		h.warn("sign-in link request failed", "email", email, "err", err)
		vm.FieldError = "Could not send the sign-in link. Try again."
		h.render(w, http.StatusBadGateway, "login.html", vm)
	}
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if callbackErr := strings.TrimSpace(q.Get("error")); callbackErr != "" {
		redirectToLogin(w, r, callbackErr)
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		redirectToLogin(w, r, ErrorNoCode)
		return
	}
	sess, err := h.gateway.ExchangeCode(r.Context(), code)
	if err != nil {
		h.warn("sign-in code exchange failed", "err", err)
		redirectToLogin(w, r, ErrorExchangeFailed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeNext(q.Get("next")), http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.SignOut(r.Context(), common.RequestToken(r)); err != nil {
		h.warn("sign out failed", "err", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	user, err := common.Authenticate(r.Context(), h.gateway, r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	rows, err := h.todos.ListTodos(r.Context(), user.ID, "")
	if err != nil {
		h.warn("load board failed", "user_id", user.ID, "err", err)
		http.Error(w, "could not load todos", http.StatusInternalServerError)
		return
	}
	todos := make([]domain.Todo, 0, len(rows))
	for _, row := range rows {
		todos = append(todos, row.Domain(user.ID))
	}
	vm := boardVM{Title: "Sift", Email: user.Email}
	for _, pane := range domain.Panes() {
		pvm := paneVM{Shortcut: pane.Shortcut, Title: pane.Title}
		for _, todo := range domain.TodosForPane(todos, pane.ID) {
			pvm.Todos = append(pvm.Todos, todoVM{
				Content:    todo.Content,
				WaitingFor: todo.WaitingFor,
				Done:       todo.Completed(),
			})
		}
		vm.Panes = append(vm.Panes, pvm)
	}
	h.render(w, http.StatusOK, "board.html", vm)
}

// callbackURL builds the absolute callback URL carried by emailed links.
func (h *Handler) callbackURL(next string) string {
	link := h.cfg.BaseURL + "/auth/callback"
	if next != "/" {
		link += "?" + url.Values{"next": {next}}.Encode()
	}
	return link
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	var b bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		h.warn("render template failed", "template", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = b.WriteTo(w)
}

func (h *Handler) warn(msg string, keyvals ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keyvals...)
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/login?"+url.Values{"error": {code}}.Encode(), http.StatusFound)
}

// safeNext returns next when it is a same-site absolute path, else "/".
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}
