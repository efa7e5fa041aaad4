// Package main is the entry point for the agentbox server.
//
// Agentbox runs an AI agent whose tools execute inside per-session sandboxes
// (local Docker containers or a remote sandbox service). The server exposes
// a REST control surface for session lifecycle, sandbox operations, and chat,
// plus a Model Context Protocol (MCP) transport for MCP clients.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
