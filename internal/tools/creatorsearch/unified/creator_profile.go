package unified

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/tools"
)

// CreatorProfileTool fetches one creator profile by username
type CreatorProfileTool struct {
	orchestrator *Orchestrator
}

// NewCreatorProfileTool creates the profile tool over an explicit orchestrator
func NewCreatorProfileTool(o *Orchestrator) *CreatorProfileTool {
	return &CreatorProfileTool{orchestrator: o}
}

// Definition returns the tool's definition for MCP registration
func (t *CreatorProfileTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"creator_profile",
		mcp.WithDescription("Fetch a creator's full profile (display name, bio, follower count, avatar, recent videos) by username."),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("Account username, with or without the leading @"),
		),
	)
}

// Execute fetches the profile
func (t *CreatorProfileTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	username, ok := args["username"].(string)
	if !ok || strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: username")
	}

	o := t.orchestrator
	if o == nil {
		o = defaultOrchestrator(logger)
	}

	logger.WithField("username", username).Info("Fetching creator profile")

	profile, err := o.Profile(ctx, logger, username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile for %s: %w", username, err)
	}
	return tools.JSONResult(profile)
}

// CreatorAnalysisTool runs a deep content relevance assessment of one creator
type CreatorAnalysisTool struct {
	orchestrator *Orchestrator
}

// NewCreatorAnalysisTool creates the analysis tool over an explicit orchestrator
func NewCreatorAnalysisTool(o *Orchestrator) *CreatorAnalysisTool {
	return &CreatorAnalysisTool{orchestrator: o}
}

// Definition returns the tool's definition for MCP registration
func (t *CreatorAnalysisTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"creator_analysis",
		mcp.WithDescription(`Assess how well a creator's recent content matches a description, including thumbnail analysis.

A result with status "limited" means the analysis ran on a lower fidelity path and should be treated as indicative.`),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("Account username, with or without the leading @"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the content should match"),
		),
		mcp.WithArray("criteria",
			mcp.Description("Optional specific criteria to check"),
			mcp.WithStringItems(),
		),
	)
}

// Execute runs the analysis
func (t *CreatorAnalysisTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	username, ok := args["username"].(string)
	if !ok || strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: username")
	}
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: query")
	}

	var criteria []string
	if raw, ok := args["criteria"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				criteria = append(criteria, strings.TrimSpace(s))
			}
		}
	}

	o := t.orchestrator
	if o == nil {
		o = defaultOrchestrator(logger)
	}

	logger.WithFields(logrus.Fields{
		"username": username,
		"query":    query,
	}).Info("Analysing creator content")

	analysis, err := o.Analyse(ctx, logger, username, query, criteria)
	if err != nil {
		return nil, fmt.Errorf("content analysis failed: %w", err)
	}
	return tools.JSONResult(analysis)
}
