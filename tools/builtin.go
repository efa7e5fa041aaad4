package tools

import (
	"context"
	"fmt"

	"github.com/isdmx/agentbox/sandbox"
)

// ExecuteCodeTool runs code in the session's sandbox. Sessions without a
// sandbox get one provisioned on the remote backend first.
type ExecuteCodeTool struct {
	manager *sandbox.Manager
}

// NewExecuteCodeTool creates the execute_code tool
func NewExecuteCodeTool(manager *sandbox.Manager) *ExecuteCodeTool {
	return &ExecuteCodeTool{manager: manager}
}

func (*ExecuteCodeTool) Name() string { return "execute_code" }

func (*ExecuteCodeTool) Description() string {
	return "Execute Python code in a secure sandbox. Returns stdout, stderr, and any generated artifacts."
}

func (*ExecuteCodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Python code to execute",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Programming language (defaults to python)",
			},
		},
		"required": []string{"code"},
	}
}

func (*ExecuteCodeTool) Validate(args map[string]any) error {
	_, err := requireString(args, "code")
	return err
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	code, err := requireString(args, "code")
	if err != nil {
		return Result{}, err
	}
	language, err := optionalString(args, "language", "python")
	if err != nil {
		return Result{}, err
	}

	if err := ensureSandbox(ctx, t.manager, sessionID); err != nil {
		return Result{}, err
	}

	exec, err := t.manager.Execute(ctx, sessionID, code, language)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Success:   exec.Success,
		Stdout:    exec.Stdout,
		Stderr:    exec.Stderr,
		Error:     exec.Error,
		Artifacts: exec.Artifacts,
	}, nil
}

// FileOperationsTool reads, writes, and lists files in the session's sandbox
type FileOperationsTool struct {
	manager *sandbox.Manager
}

// NewFileOperationsTool creates the file_operations tool
func NewFileOperationsTool(manager *sandbox.Manager) *FileOperationsTool {
	return &FileOperationsTool{manager: manager}
}

func (*FileOperationsTool) Name() string { return "file_operations" }

func (*FileOperationsTool) Description() string {
	return "Read, write, or list files in the sandbox filesystem"
}

func (*FileOperationsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list"},
				"description": "File operation to perform",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory path",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write (for write operation)",
			},
		},
		"required": []string{"operation", "path"},
	}
}

func (*FileOperationsTool) Validate(args map[string]any) error {
	op, err := requireString(args, "operation")
	if err != nil {
		return err
	}
	if op != "read" && op != "write" && op != "list" {
		return fmt.Errorf("unknown operation: %s", op)
	}
	if _, err := requireString(args, "path"); err != nil {
		return err
	}
	if op == "write" {
		if _, err := requireString(args, "content"); err != nil {
			return fmt.Errorf("content required for write: %w", err)
		}
	}
	return nil
}

func (t *FileOperationsTool) Execute(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	op, _ := requireString(args, "operation")
	path, _ := requireString(args, "path")

	switch op {
	case "read":
		data, err := t.manager.ReadFile(ctx, sessionID, path)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Data:    map[string]any{"path": path, "content": string(data)},
		}, nil

	case "write":
		content, _ := requireString(args, "content")
		if err := t.manager.WriteFile(ctx, sessionID, path, []byte(content)); err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Data:    map[string]any{"path": path, "message": fmt.Sprintf("File written to %s", path)},
		}, nil

	case "list":
		files, err := t.manager.ListFiles(ctx, sessionID, path)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Data:    map[string]any{"directory": path, "files": files},
		}, nil
	}

	return Result{}, fmt.Errorf("unknown operation: %s", op)
}

// WebSearchTool is a stub capability that returns a canned structured result
type WebSearchTool struct{}

// NewWebSearchTool creates the web_search tool
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{}
}

func (*WebSearchTool) Name() string { return "web_search" }

func (*WebSearchTool) Description() string {
	return "Search the web for information"
}

func (*WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required": []string{"query"},
	}
}

func (*WebSearchTool) Validate(args map[string]any) error {
	_, err := requireString(args, "query")
	return err
}

func (*WebSearchTool) Execute(_ context.Context, _ string, args map[string]any) (Result, error) {
	query, err := requireString(args, "query")
	if err != nil {
		return Result{}, err
	}

	return Result{
		Success: true,
		Data: map[string]any{
			"query": query,
			"results": []map[string]any{
				{
					"title":   fmt.Sprintf("Search result for: %s", query),
					"snippet": "This is a placeholder result. Integrate a real search API to replace it.",
					"url":     "https://example.com",
				},
			},
		},
	}, nil
}

// Analysis code templates keyed by analysis_type. Each prints a report to
// stdout; the visualize template additionally writes a chart to /tmp.
var analysisTemplates = map[string]string{
	"summary": `import pandas as pd
df = pd.read_csv(%q)
print("Shape:", df.shape)
print("\nColumn Types:")
print(df.dtypes)
print("\nSummary Statistics:")
print(df.describe())
print("\nMissing Values:")
print(df.isnull().sum())
`,
	"visualize": `import pandas as pd
import matplotlib.pyplot as plt
df = pd.read_csv(%q)
df.hist(figsize=(12, 8), bins=20)
plt.tight_layout()
plt.savefig('/tmp/visualization.png')
print("Visualization saved to /tmp/visualization.png")
`,
	"correlate": `import pandas as pd
df = pd.read_csv(%q)
numeric = df.select_dtypes(include="number")
print("Correlation Matrix:")
print(numeric.corr())
`,
}

// DataAnalysisTool synthesizes pandas code from a template and runs it in
// the session's sandbox, returning captured stdout as the analysis report
type DataAnalysisTool struct {
	manager *sandbox.Manager
}

// NewDataAnalysisTool creates the analyze_data tool
func NewDataAnalysisTool(manager *sandbox.Manager) *DataAnalysisTool {
	return &DataAnalysisTool{manager: manager}
}

func (*DataAnalysisTool) Name() string { return "analyze_data" }

func (*DataAnalysisTool) Description() string {
	return "Analyze CSV data with pandas - summary statistics, correlations, visualizations"
}

func (*DataAnalysisTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the CSV file",
			},
			"analysis_type": map[string]any{
				"type":        "string",
				"enum":        []string{"summary", "visualize", "correlate"},
				"description": "Type of analysis to perform",
			},
		},
		"required": []string{"file_path"},
	}
}

func (*DataAnalysisTool) Validate(args map[string]any) error {
	if _, err := requireString(args, "file_path"); err != nil {
		return err
	}
	analysisType, err := optionalString(args, "analysis_type", "summary")
	if err != nil {
		return err
	}
	if _, ok := analysisTemplates[analysisType]; !ok {
		return fmt.Errorf("unknown analysis type: %s", analysisType)
	}
	return nil
}

func (t *DataAnalysisTool) Execute(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	filePath, _ := requireString(args, "file_path")
	analysisType, _ := optionalString(args, "analysis_type", "summary")

	code := fmt.Sprintf(analysisTemplates[analysisType], filePath)

	if err := ensureSandbox(ctx, t.manager, sessionID); err != nil {
		return Result{}, err
	}

	exec, err := t.manager.Execute(ctx, sessionID, code, "python")
	if err != nil {
		return Result{}, err
	}

	return Result{
		Success:   exec.Success,
		Stdout:    exec.Stdout,
		Error:     exec.Error,
		Artifacts: exec.Artifacts,
		Data:      map[string]any{"analysis_type": analysisType},
	}, nil
}

// ensureSandbox provisions a remote sandbox for sessions that do not have
// one bound yet, so tool calls can run before an explicit session start
func ensureSandbox(ctx context.Context, manager *sandbox.Manager, sessionID string) error {
	if _, bound := manager.GetBinding(sessionID); bound {
		return nil
	}
	_, err := manager.StartSandbox(ctx, sessionID, "", sandbox.KindRemote)
	return err
}

// RegisterBuiltins registers the built-in tool set against the registry
func RegisterBuiltins(registry *Registry, manager *sandbox.Manager) {
	registry.Register(NewExecuteCodeTool(manager))
	registry.Register(NewFileOperationsTool(manager))
	registry.Register(NewWebSearchTool())
	registry.Register(NewDataAnalysisTool(manager))
}
