package tools

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry maps unique tool names to tool instances. Registration may happen
// at any time; the agent sees whatever is registered when schemas are
// requested.
type Registry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	tools       map[string]Tool
	definitions map[string]Definition
}

// NewRegistry creates an empty tool registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:      logger,
		tools:       make(map[string]Tool),
		definitions: make(map[string]Definition),
	}
}

// Register adds a tool under its name, replacing any previous registration
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	r.tools[tool.Name()] = tool
	r.mu.Unlock()

	r.logger.Info("registered tool", zap.String("tool", tool.Name()))
}

// Get returns the tool registered under name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Schemas returns a function-calling definition for every registered tool
func (r *Registry) Schemas() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, Definition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// LoadDefinitions reads supplemental tool definitions from YAML files in
// dir. Missing directories are tolerated; individual unreadable files are
// skipped with a log entry.
func (r *Registry) LoadDefinitions(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read tool registry dir", zap.String("dir", dir), zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable tool definition", zap.String("path", path), zap.Error(err))
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil || def.Name == "" {
			r.logger.Warn("skipping invalid tool definition", zap.String("path", path), zap.Error(err))
			continue
		}

		r.mu.Lock()
		r.definitions[def.Name] = def
		r.mu.Unlock()

		r.logger.Info("loaded tool definition", zap.String("tool", def.Name))
	}
}

// GetDefinition returns a YAML-loaded definition by name
func (r *Registry) GetDefinition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}
