// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the agent and the sandbox executor as MCP
// tools using the mark3labs/mcp-go library: chat drives a full agent turn
// and execute_sandboxed_code runs code directly in a session's sandbox.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/agentbox/agent"
	"github.com/isdmx/agentbox/config"
	"github.com/isdmx/agentbox/lifecycle"
	"github.com/isdmx/agentbox/sandbox"
)

// Session used when an MCP client does not supply one
const defaultSessionID = "mcp-default"

// MCPServer represents the MCP server
type MCPServer struct {
	config       *config.Config
	logger       *zap.Logger
	agent        *agent.Agent
	sandboxes    *sandbox.Manager
	orchestrator *lifecycle.Orchestrator
	mcpServer    *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, ag *agent.Agent, sandboxes *sandbox.Manager, orch *lifecycle.Orchestrator) (*MCPServer, error) {
	s := &MCPServer{
		config:       cfg,
		logger:       logger,
		agent:        ag,
		sandboxes:    sandboxes,
		orchestrator: orch,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("server.mcp_port", cfg.Server.MCPPort),
		zap.String("sandbox.default_backend", cfg.Sandbox.DefaultBackend),
		zap.String("agent.model", cfg.Agent.Model),
		zap.Int("agent.max_iterations", cfg.Agent.MaxIterations),
		zap.Bool("agent.tools_enabled", cfg.Agent.ToolsEnabled),
	)

	s.mcpServer = server.NewMCPServer("agentbox", "An AI agent with sandboxed code execution")

	s.registerChatTool()
	s.registerExecuteSandboxedCodeTool()

	return s, nil
}

// registerChatTool registers the chat tool
func (s *MCPServer) registerChatTool() {
	tool := mcp.Tool{
		Name:        "chat",
		Description: "Send a message to the agent and receive its reply. The agent may invoke sandbox tools while answering.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "User message for the agent",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Conversation session identifier (optional)",
				},
			},
			Required: []string{"message"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleChat)
}

// registerExecuteSandboxedCodeTool registers the execute_sandboxed_code tool
func (s *MCPServer) registerExecuteSandboxedCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_sandboxed_code",
		Description: "Execute untrusted code in a sandboxed environment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language (defaults to python)",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session whose sandbox runs the code (optional)",
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteSandboxedCode)
}

// handleChat handles the chat tool
func (s *MCPServer) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return nil, fmt.Errorf("message parameter is required: %w", err)
	}

	sessionID := request.GetString("session_id", defaultSessionID)

	s.logger.Info("chat requested", zap.String("session_id", sessionID))

	resp, err := s.agent.Run(ctx, sessionID, message)
	if err != nil {
		s.logger.Error("agent turn failed",
			zap.Error(err),
			zap.String("session_id", sessionID))
		return errorResult(fmt.Sprintf("Chat failed: %v", err)), nil
	}

	return textResult(resp.Content), nil
}

// handleExecuteSandboxedCode handles the execute_sandboxed_code tool
func (s *MCPServer) handleExecuteSandboxedCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("code execution requested")

	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language := request.GetString("language", "python")
	sessionID := request.GetString("session_id", defaultSessionID)

	if _, bound := s.sandboxes.GetBinding(sessionID); !bound {
		kind := sandbox.Kind(s.config.Sandbox.DefaultBackend)
		if _, err := s.orchestrator.Start(ctx, sessionID, "", kind); err != nil {
			s.logger.Error("sandbox provisioning failed",
				zap.Error(err),
				zap.String("session_id", sessionID))
			return errorResult(fmt.Sprintf("Provisioning failed: %v", err)), nil
		}
	}

	s.logger.Info("executing code in sandbox",
		zap.String("session_id", sessionID),
		zap.String("language", language))

	result, err := s.sandboxes.Execute(ctx, sessionID, code, language)
	if err != nil {
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("session_id", sessionID),
			zap.String("language", language))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("code execution completed",
		zap.String("session_id", sessionID),
		zap.Bool("success", result.Success),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("stderr_len", len(result.Stderr)))

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Sprintf("Result encoding failed: %v", err)), nil
	}

	return textResult(string(resultJSON)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.MCPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
