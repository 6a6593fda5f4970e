package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/sammcj/creator-scout/internal/tools"
)

type stubTool struct {
	name string
}

func (s *stubTool) Definition() mcp.Tool {
	return mcp.NewTool(s.name, mcp.WithDescription("stub"))
}

func (s *stubTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

type helpfulTool struct {
	stubTool
}

func (h *helpfulTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{WhenToUse: "always"}
}

// indexTool lists the other registered tools in its definition
type indexTool struct{}

func (i *indexTool) Definition() mcp.Tool {
	return mcp.NewTool("registry_test_index",
		mcp.WithString("tool_name", mcp.Enum(GetToolNamesWithExtendedHelp()...)))
}

func (i *indexTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseDisabledTools(t *testing.T) {
	disabled := parseDisabledTools(" creator-search, resolve_media ,,")
	assert.Equal(t, map[string]bool{"creator_search": true, "resolve_media": true}, disabled)
	assert.Empty(t, parseDisabledTools(""))
}

func TestRegistry_DisabledTools(t *testing.T) {
	t.Setenv(DisabledToolsEnvVar, "registry-test-disabled")
	Init(quietLogger())

	Register(&stubTool{name: "registry_test_enabled"})
	Register(&helpfulTool{stubTool{name: "registry_test_helpful"}})
	Register(&stubTool{name: "registry_test_disabled"})

	_, ok := GetTool("registry_test_enabled")
	assert.True(t, ok)
	_, ok = GetTool("registry_test_disabled")
	assert.False(t, ok)

	names := GetEnabledToolNames()
	assert.Contains(t, names, "registry_test_enabled")
	assert.NotContains(t, names, "registry_test_disabled")

	help := GetToolNamesWithExtendedHelp()
	assert.Contains(t, help, "registry_test_helpful")
	assert.NotContains(t, help, "registry_test_enabled")

	// Re-initialising without the variable re-enables the tool
	t.Setenv(DisabledToolsEnvVar, "")
	Init(quietLogger())
	_, ok = GetTool("registry_test_disabled")
	assert.True(t, ok)
	assert.NotNil(t, GetCache())
	assert.NotNil(t, GetLogger())
}

func TestRegister_DefinitionReadingRegistry(t *testing.T) {
	Init(quietLogger())
	Register(&helpfulTool{stubTool{name: "registry_test_listed"}})

	done := make(chan struct{})
	go func() {
		Register(&indexTool{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Register blocked on a definition that reads the registry")
	}

	_, ok := GetTool("registry_test_index")
	assert.True(t, ok)
}
