package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores todos, users, sign-in codes, and sessions.
type Repository struct {
	db *sql.DB
}

var (
	_ app.Repository = (*Repository)(nil)
	_ auth.Store     = (*Repository)(nil)
)

// Open opens the database at path, creating its directory and schema when needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	dsn := fmt.Sprintf("file:sift-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			pane TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			waiting_for TEXT,
			created_at TEXT NOT NULL,
			completed_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user_position ON todos(user_id, position);`,
		`CREATE TABLE IF NOT EXISTS auth_codes (
			code_hash TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token_hash TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// InsertTodo stores a new todo.
func (r *Repository) InsertTodo(ctx context.Context, t domain.Todo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO todos(id, user_id, content, pane, position, waiting_for, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Content, string(t.Pane), t.Position, nullableText(t.WaitingFor), ts(t.CreatedAt), nullableTS(t.CompletedAt))
	return err
}

// UpdateTodo overwrites a todo owned by t.UserID.
func (r *Repository) UpdateTodo(ctx context.Context, t domain.Todo) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE todos
		SET content = ?, pane = ?, position = ?, waiting_for = ?, completed_at = ?
		WHERE id = ? AND user_id = ?
	`, t.Content, string(t.Pane), t.Position, nullableText(t.WaitingFor), nullableTS(t.CompletedAt), t.ID, t.UserID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetTodo returns one of the user's todos.
func (r *Repository) GetTodo(ctx context.Context, userID, id string) (domain.Todo, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, pane, position, waiting_for, created_at, completed_at
		FROM todos
		WHERE id = ? AND user_id = ?
	`, id, userID)
	return scanTodo(row)
}

// DeleteTodo removes one of the user's todos.
func (r *Repository) DeleteTodo(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListTodos returns every todo of the user ordered by position.
func (r *Repository) ListTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, content, pane, position, waiting_for, created_at, completed_at
		FROM todos
		WHERE user_id = ?
		ORDER BY position ASC, created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnsureUser returns the user with u's email, inserting u when none exists.
func (r *Repository) EnsureUser(ctx context.Context, u domain.User) (domain.User, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users(id, email, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, u.ID, u.Email, ts(u.CreatedAt)); err != nil {
		return domain.User{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT id, email, created_at FROM users WHERE email = ?`, u.Email)
	return scanUser(row)
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// CreateSignInCode stores a hashed one-time code.
func (r *Repository) CreateSignInCode(ctx context.Context, code auth.SignInCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_codes(code_hash, email, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, code.Hash, code.Email, ts(code.CreatedAt), ts(code.ExpiresAt))
	return err
}

// ConsumeSignInCode deletes a code and returns it.
func (r *Repository) ConsumeSignInCode(ctx context.Context, hash string) (auth.SignInCode, error) {
	var (
		code       = auth.SignInCode{Hash: hash}
		createdRaw string
		expiresRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM auth_codes
		WHERE code_hash = ?
		RETURNING email, created_at, expires_at
	`, hash).Scan(&code.Email, &createdRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.SignInCode{}, app.ErrNotFound
	}
	if err != nil {
		return auth.SignInCode{}, err
	}
	code.CreatedAt = parseTS(createdRaw)
	code.ExpiresAt = parseTS(expiresRaw)
	return code, nil
}

// CreateSession stores a hashed session token.
func (r *Repository) CreateSession(ctx context.Context, s auth.SessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions(token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, s.Hash, s.UserID, ts(s.CreatedAt), ts(s.ExpiresAt))
	return err
}

// GetSession returns a session by token hash.
func (r *Repository) GetSession(ctx context.Context, hash string) (auth.SessionRecord, error) {
	var (
		s          = auth.SessionRecord{Hash: hash}
		createdRaw string
		expiresRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = ?
	`, hash).Scan(&s.UserID, &createdRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.SessionRecord{}, app.ErrNotFound
	}
	if err != nil {
		return auth.SessionRecord{}, err
	}
	s.CreatedAt = parseTS(createdRaw)
	s.ExpiresAt = parseTS(expiresRaw)
	return s, nil
}

// DeleteSession removes a session by token hash.
func (r *Repository) DeleteSession(ctx context.Context, hash string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hash)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanTodo handles scan todo.
func scanTodo(s scanner) (domain.Todo, error) {
	var (
		t          domain.Todo
		paneRaw    string
		waitingFor sql.NullString
		createdRaw string
		completed  sql.NullString
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Content, &paneRaw, &t.Position, &waitingFor, &createdRaw, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Todo{}, app.ErrNotFound
		}
		return domain.Todo{}, err
	}
	t.Pane = domain.PaneID(paneRaw)
	t.WaitingFor = waitingFor.String
	t.CreatedAt = parseTS(createdRaw)
	t.CompletedAt = parseNullTS(completed)
	return t, nil
}

func scanUser(s scanner) (domain.User, error) {
	var (
		u          domain.User
		createdRaw string
	)
	if err := s.Scan(&u.ID, &u.Email, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, app.ErrNotFound
		}
		return domain.User{}, err
	}
	u.CreatedAt = parseTS(createdRaw)
	return u, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableText(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
