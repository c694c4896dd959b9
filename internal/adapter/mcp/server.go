// Package mcp exposes the desk's IT tools and the full router over the
// Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"helpdesk-ai/internal/adapter/itops"
	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/usecase"
)

// Asker runs one desk turn.
type Asker interface {
	Ask(ctx context.Context, sessionID, userID, message string) (usecase.Reply, error)
}

// Deps are the collaborators behind the tools. Tickets and Desk are
// optional; the tools that need them are not registered without them.
type Deps struct {
	Directory *itops.Directory
	Ops       domain.ITOps
	Tickets   domain.TicketService
	Desk      Asker
}

// Server is the MCP tool server.
type Server struct {
	deps   Deps
	mcp    *server.MCPServer
	logger *slog.Logger
}

// NewServer registers the tools on a fresh MCP server.
func NewServer(name, version string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps: deps,
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger,
	}
	s.register()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves requests on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) register() {
	userID := mcpgo.WithString("user_id", mcpgo.Required(), mcpgo.Description("User ID to look up"))

	s.mcp.AddTool(mcpgo.NewTool("get_user_info",
		mcpgo.WithDescription("Retrieve user profile information from HR/IT systems"),
		userID,
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.getUserInfo)

	s.mcp.AddTool(mcpgo.NewTool("get_ticket_status",
		mcpgo.WithDescription("Get the status of a ServiceNow/Jira ticket"),
		mcpgo.WithString("ticket_id", mcpgo.Required(), mcpgo.Description("Ticket ID (e.g., INC-12345)")),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.getTicketStatus)

	s.mcp.AddTool(mcpgo.NewTool("create_ticket",
		mcpgo.WithDescription("Create a new IT support ticket"),
		mcpgo.WithString("title", mcpgo.Required()),
		mcpgo.WithString("description", mcpgo.Required()),
		mcpgo.WithString("priority", mcpgo.Required(), mcpgo.Enum("Low", "Medium", "High", "Critical")),
		mcpgo.WithString("requester", mcpgo.Required()),
	), s.createTicket)

	s.mcp.AddTool(mcpgo.NewTool("check_system_health",
		mcpgo.WithDescription("Check health status of IT infrastructure systems"),
		mcpgo.WithString("system_id", mcpgo.Required(), mcpgo.Description("System identifier")),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.checkSystemHealth)

	s.mcp.AddTool(mcpgo.NewTool("reset_password",
		mcpgo.WithDescription("Initiate password reset for a user"),
		userID,
	), s.resetPassword)

	s.mcp.AddTool(mcpgo.NewTool("unlock_account",
		mcpgo.WithDescription("Unlock a locked user account"),
		userID,
	), s.unlockAccount)

	s.mcp.AddTool(mcpgo.NewTool("check_vpn_status",
		mcpgo.WithDescription("Check the VPN connection status for a user"),
		userID,
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.checkVPNStatus)

	if s.deps.Desk != nil {
		s.mcp.AddTool(mcpgo.NewTool("route_request",
			mcpgo.WithDescription("Send a support request through the full help desk: classification, routing and the matching handler"),
			mcpgo.WithString("message", mcpgo.Required(), mcpgo.Description("The user's request")),
			mcpgo.WithString("user_id", mcpgo.Description("Requesting user (default user123)")),
			mcpgo.WithString("session_id", mcpgo.Description("Continue an existing conversation")),
		), s.routeRequest)
	}
}

func (s *Server) getUserInfo(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("user_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	u, err := s.deps.Directory.User(id)
	if err != nil {
		return jsonResult(map[string]any{"error": "User not found", "user_id": id})
	}
	return jsonResult(u)
}

func (s *Server) getTicketStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("ticket_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if inc, err := s.deps.Directory.Incident(id); err == nil {
		return jsonResult(inc)
	}
	if s.deps.Tickets != nil {
		t, err := s.deps.Tickets.GetTicket(ctx, id)
		switch {
		case err == nil:
			return jsonResult(t)
		case !errors.Is(err, domain.ErrTicketNotFound):
			s.logger.Warn("mcp: ticket lookup failed", "ticket_id", id, "error", err)
			return mcpgo.NewToolResultError(fmt.Sprintf("ticket lookup failed: %v", err)), nil
		}
	}
	return jsonResult(map[string]any{"error": "Ticket not found", "ticket_id": id})
}

func (s *Server) createTicket(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	desc := req.GetString("description", "")
	priority := req.GetString("priority", "Medium")
	requester := req.GetString("requester", "")
	switch priority {
	case "Low", "Medium", "High", "Critical":
	default:
		return mcpgo.NewToolResultError(fmt.Sprintf("invalid priority %q", priority)), nil
	}
	return jsonResult(s.deps.Directory.FileIncident(title, desc, priority, requester))
}

func (s *Server) checkSystemHealth(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("system_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	h, err := s.deps.Ops.CheckSystemHealth(ctx, id)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h)
}

func (s *Server) resetPassword(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("user_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	r, err := s.deps.Directory.ResetPassword(id)
	if err != nil {
		return jsonResult(map[string]any{"success": false, "error": "User not found"})
	}
	return jsonResult(map[string]any{
		"success":    true,
		"message":    r.Message,
		"reset_link": r.ResetLink,
		"expires":    r.Expires,
	})
}

func (s *Server) unlockAccount(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("user_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	msg, err := s.deps.Directory.UnlockUser(id)
	if err != nil {
		return jsonResult(map[string]any{"success": false, "error": "User not found"})
	}
	return jsonResult(map[string]any{"success": true, "message": msg})
}

func (s *Server) checkVPNStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("user_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	status, err := s.deps.Ops.CheckVPNStatus(ctx, id)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"user_id": id, "status": status})
}

func (s *Server) routeRequest(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	reply, err := s.deps.Desk.Ask(ctx,
		req.GetString("session_id", ""),
		req.GetString("user_id", "user123"),
		msg,
	)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
	}
	return jsonResult(reply)
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
