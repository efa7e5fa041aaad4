package tools

import (
	"context"
	"fmt"

	"github.com/isdmx/agentbox/sandbox"
)

// Result is the structured outcome of a tool invocation. Failures are
// results, not errors: the executor guarantees a Result for every call.
type Result struct {
	Success   bool               `json:"success"`
	Stdout    string             `json:"stdout,omitempty"`
	Stderr    string             `json:"stderr,omitempty"`
	Error     string             `json:"error,omitempty"`
	Data      map[string]any     `json:"data,omitempty"`
	Artifacts []sandbox.Artifact `json:"artifacts,omitempty"`
}

// Definition describes a tool for model function calling
type Definition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
	Examples    []string       `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Tool is an invocable capability exposed to the agent. Validate is called
// before Execute; a validation failure prevents the body from running.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Validate(args map[string]any) error
	Execute(ctx context.Context, sessionID string, args map[string]any) (Result, error)
}

// requireString extracts a required non-empty string argument
func requireString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return s, nil
}

// optionalString extracts an optional string argument, returning fallback
// when absent
func optionalString(args map[string]any, key, fallback string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}
