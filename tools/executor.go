package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor runs tools with argument validation and structured error capture.
// Execute always returns a Result: a failing tool must never abort the
// conversation turn that invoked it.
type Executor struct {
	logger   *zap.Logger
	registry *Registry
}

// NewExecutor creates an executor over the given registry
func NewExecutor(logger *zap.Logger, registry *Registry) *Executor {
	return &Executor{
		logger:   logger,
		registry: registry,
	}
}

// Registry returns the underlying tool registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Schemas returns the function-calling schemas of all registered tools
func (e *Executor) Schemas() []Definition {
	return e.registry.Schemas()
}

// Execute resolves the named tool, validates arguments, and invokes the tool
// body. Unknown tools, invalid arguments, returned errors, and panics all
// become failed results.
func (e *Executor) Execute(ctx context.Context, sessionID, toolName string, args map[string]any) (result Result) {
	e.logger.Info("executing tool",
		zap.String("session_id", sessionID),
		zap.String("tool", toolName))

	tool, ok := e.registry.Get(toolName)
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("tool not found: %s", toolName)}
	}

	if err := tool.Validate(args); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid arguments for %s: %v", toolName, err)}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked",
				zap.String("tool", toolName),
				zap.Any("panic", r))
			result = Result{Success: false, Error: fmt.Sprintf("tool %s panicked: %v", toolName, r)}
		}
	}()

	result, err := tool.Execute(ctx, sessionID, args)
	if err != nil {
		e.logger.Warn("tool execution failed",
			zap.String("tool", toolName),
			zap.Error(err))
		return Result{Success: false, Error: err.Error()}
	}

	e.logger.Info("tool completed",
		zap.String("tool", toolName),
		zap.Bool("success", result.Success))

	return result
}
