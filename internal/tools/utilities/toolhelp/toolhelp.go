package toolhelp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools"
)

// ToolHelpTool returns examples and troubleshooting for the other creator-scout tools
type ToolHelpTool struct{}

// ToolHelpResponse is the get_tool_help result
type ToolHelpResponse struct {
	ToolName     string               `json:"tool_name"`
	Description  string               `json:"description"`
	InputSchema  *mcp.ToolInputSchema `json:"input_schema,omitempty"`
	ExtendedInfo *tools.ExtendedHelp  `json:"extended_info,omitempty"`
	Message      string               `json:"message,omitempty"`
}

func init() {
	registry.Register(&ToolHelpTool{})
}

// Definition returns the tool's definition for MCP registration
func (t *ToolHelpTool) Definition() mcp.Tool {
	withHelp := registry.GetToolNamesWithExtendedHelp()

	description := "Get usage examples and troubleshooting for creator-scout tools when a call fails unexpectedly."
	if len(withHelp) == 0 {
		description = "No tools currently provide extended help information."
		withHelp = []string{}
	}

	return mcp.NewTool(
		"get_tool_help",
		mcp.WithDescription(description),
		mcp.WithString("tool_name",
			mcp.Required(),
			mcp.Description("Name of the tool to get help for"),
			mcp.Enum(withHelp...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute executes the get_tool_help tool
func (t *ToolHelpTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	toolName, ok := args["tool_name"].(string)
	if !ok || strings.TrimSpace(toolName) == "" {
		return nil, fmt.Errorf("invalid parameters: missing or invalid required parameter: tool_name")
	}

	tool, exists := registry.GetTool(toolName)
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found or disabled. Tools with extended help: %s",
			toolName, strings.Join(registry.GetToolNamesWithExtendedHelp(), ", "))
	}

	provider, ok := tool.(tools.ExtendedHelpProvider)
	if !ok {
		return nil, fmt.Errorf("tool '%s' does not provide extended help. Tools with extended help: %s",
			toolName, strings.Join(registry.GetToolNamesWithExtendedHelp(), ", "))
	}

	def := tool.Definition()
	response := &ToolHelpResponse{
		ToolName:     toolName,
		Description:  def.Description,
		ExtendedInfo: provider.ProvideExtendedInfo(),
	}
	if def.InputSchema.Type != "" {
		response.InputSchema = &def.InputSchema
	}
	if response.ExtendedInfo == nil {
		response.Message = fmt.Sprintf("Tool '%s' returned no extended information", toolName)
	}

	return tools.JSONResult(response)
}
