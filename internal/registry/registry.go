package registry

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/tools"
)

// DisabledToolsEnvVar lists tools to leave unregistered, comma separated
const DisabledToolsEnvVar = "CREATOR_SCOUT_DISABLED_TOOLS"

var (
	// toolRegistry is a map of tool names to tool implementations
	toolRegistry = make(map[string]tools.Tool)

	// disabledTools is a set of normalised tool names to disable
	disabledTools = make(map[string]bool)

	mu sync.RWMutex

	// logger is the shared logger instance
	logger *logrus.Logger

	// cache is the shared per-process cache handed to tools
	cache *sync.Map
)

// Init initialises the registry and shared resources
func Init(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
	cache = &sync.Map{}
	disabledTools = parseDisabledTools(os.Getenv(DisabledToolsEnvVar))

	if logger != nil && len(disabledTools) > 0 {
		logger.WithField("count", len(disabledTools)).Debug("Parsed disabled tools from environment")
	}
}

// normaliseName lowercases and treats hyphens and underscores alike
func normaliseName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

func parseDisabledTools(value string) map[string]bool {
	disabled := make(map[string]bool)
	for tool := range strings.SplitSeq(value, ",") {
		if name := normaliseName(tool); name != "" {
			disabled[name] = true
		}
	}
	return disabled
}

// isDisabled reports whether a tool was disabled through the environment. Caller must hold mu.
func isDisabled(name string) bool {
	return disabledTools[normaliseName(name)]
}

// Register adds a tool implementation to the registry.
// Disabled tools are still recorded so that a later Init can re-enable them.
// Definition is called before taking the lock since some definitions read the registry.
func Register(tool tools.Tool) {
	toolName := tool.Definition().Name

	mu.Lock()
	defer mu.Unlock()

	toolRegistry[toolName] = tool
	if logger != nil {
		logger.WithField("tool", toolName).Debug("Tool registered")
	}
}

// GetTool retrieves a tool by name, returns false if unknown or disabled
func GetTool(name string) (tools.Tool, bool) {
	mu.RLock()
	defer mu.RUnlock()

	if isDisabled(name) {
		return nil, false
	}
	tool, ok := toolRegistry[name]
	return tool, ok
}

// GetEnabledTools returns all registered tools that are not disabled
func GetEnabledTools() map[string]tools.Tool {
	mu.RLock()
	defer mu.RUnlock()

	filtered := make(map[string]tools.Tool, len(toolRegistry))
	for name, tool := range toolRegistry {
		if isDisabled(name) {
			if logger != nil {
				logger.WithField("tool", name).Debug("Tool disabled via environment variable")
			}
			continue
		}
		filtered[name] = tool
	}
	return filtered
}

// GetEnabledToolNames returns a sorted list of enabled tool names
func GetEnabledToolNames() []string {
	enabled := GetEnabledTools()
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolNamesWithExtendedHelp returns a sorted list of enabled tool names that provide extended help
func GetToolNamesWithExtendedHelp() []string {
	var names []string
	for name, tool := range GetEnabledTools() {
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// GetCache returns the shared cache instance
func GetCache() *sync.Map {
	mu.RLock()
	defer mu.RUnlock()
	return cache
}
