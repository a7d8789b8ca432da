// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler behind session auth.
type Handler struct {
	httpHandler http.Handler
	gateway     auth.Gateway
}

// NewHandler builds one stateless MCP adapter exposing the todo tools.
func NewHandler(cfg Config, todos common.TodoService, gateway auth.Gateway) (*Handler, error) {
	if todos == nil {
		return nil, fmt.Errorf("todo service is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("auth gateway is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTodoTools(mcpSrv, todos)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable, gateway: gateway}, nil
}

// ServeHTTP authenticates and handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	user, err := common.Authenticate(r.Context(), h.gateway, r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="sift"`)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	h.httpHandler.ServeHTTP(w, r.WithContext(common.WithUser(r.Context(), user)))
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "sift"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerTodoTools registers the `sift.*` todo tools.
func registerTodoTools(srv *mcpserver.MCPServer, todos common.TodoService) {
	panes := paneIDs()

	srv.AddTool(
		mcp.NewTool(
			"sift.list_todos",
			mcp.WithDescription("List the signed-in user's todos in pane order."),
			mcp.WithString("pane", mcp.Description("Restrict to one pane"), mcp.Enum(panes...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user, ok := common.UserFromContext(ctx)
			if !ok {
				return toolResultFromError(common.ErrUnauthenticated), nil
			}
			rows, err := todos.ListTodos(ctx, user.ID, req.GetString("pane", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"todos": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_todos result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sift.add_todo",
			mcp.WithDescription("Add a todo. New todos land at the end of the pane, today by default."),
			mcp.WithString("content", mcp.Required(), mcp.Description("Todo text")),
			mcp.WithString("pane", mcp.Description("Destination pane"), mcp.Enum(panes...)),
			mcp.WithString("waiting_for", mcp.Description("Who the todo is waiting on")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user, ok := common.UserFromContext(ctx)
			if !ok {
				return toolResultFromError(common.ErrUnauthenticated), nil
			}
			content, err := req.RequireString("content")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			pane := req.GetString("pane", string(domain.PaneToday))
			existing, err := todos.ListTodos(ctx, user.ID, pane)
			if err != nil {
				return toolResultFromError(err), nil
			}
			todo, err := todos.AddTodo(ctx, user.ID, common.AddTodoRequest{
				Content:    content,
				Pane:       pane,
				Position:   len(existing),
				WaitingFor: req.GetString("waiting_for", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return todoResult("add_todo", todo)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sift.toggle_todo",
			mcp.WithDescription("Flip one todo between open and completed."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Todo identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user, ok := common.UserFromContext(ctx)
			if !ok {
				return toolResultFromError(common.ErrUnauthenticated), nil
			}
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rows, err := todos.ListTodos(ctx, user.ID, "")
			if err != nil {
				return toolResultFromError(err), nil
			}
			var current *common.Todo
			for i := range rows {
				if rows[i].ID == id {
					current = &rows[i]
					break
				}
			}
			if current == nil {
				return toolResultFromError(fmt.Errorf("todo %q: %w", id, common.ErrNotFound)), nil
			}
			completed := current.CompletedAt == nil
			todo, err := todos.UpdateTodo(ctx, user.ID, id, common.UpdateTodoRequest{Completed: &completed})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return todoResult("toggle_todo", todo)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sift.edit_todo",
			mcp.WithDescription("Replace one todo's text."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Todo identifier")),
			mcp.WithString("content", mcp.Required(), mcp.Description("New todo text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user, ok := common.UserFromContext(ctx)
			if !ok {
				return toolResultFromError(common.ErrUnauthenticated), nil
			}
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			content, err := req.RequireString("content")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			todo, err := todos.UpdateTodo(ctx, user.ID, id, common.UpdateTodoRequest{Content: &content})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return todoResult("edit_todo", todo)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"sift.delete_todo",
			mcp.WithDescription("Delete one todo."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Todo identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			user, ok := common.UserFromContext(ctx)
			if !ok {
				return toolResultFromError(common.ErrUnauthenticated), nil
			}
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := todos.DeleteTodo(ctx, user.ID, id); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"deleted": id})
			if err != nil {
				return nil, fmt.Errorf("encode delete_todo result: %w", err)
			}
			return result, nil
		},
	)
}

// todoResult encodes one todo tool result.
func todoResult(tool string, todo common.Todo) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(todo)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// paneIDs lists the pane identifiers accepted by pane arguments.
func paneIDs() []string {
	out := make([]string, 0, 4)
	for _, pane := range domain.Panes() {
		out = append(out, string(pane.ID))
	}
	return out
}

// toolResultFromError maps adapter errors into MCP tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrUnauthenticated):
		return mcp.NewToolResultError("unauthenticated: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
