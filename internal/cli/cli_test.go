package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
)

// echoTool returns its arguments as JSON
type echoTool struct{}

func (e *echoTool) Definition() mcp.Tool {
	return mcp.NewTool("cli_test_echo",
		mcp.WithDescription("Echo arguments\nsecond line"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to echo")),
		mcp.WithNumber("max_results", mcp.Description("A number")),
		mcp.WithBoolean("deep_analysis", mcp.Description("A flag")),
		mcp.WithString("strategy", mcp.Enum("precise", "smart")),
		mcp.WithArray("tags", mcp.WithStringItems()),
	)
}

func (e *echoTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	return tools.JSONResult(args)
}

// searchTool stands in for creator_search with a fixed result
type searchTool struct{}

func (s *searchTool) Definition() mcp.Tool {
	return mcp.NewTool("creator_search", mcp.WithDescription("stub search"), mcp.WithString("query", mcp.Required()))
}

func (s *searchTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	return tools.JSONResult(creatorsearch.NormalizedSearchResult{
		OriginalQuery:  "fitness coach in berlin",
		EffectiveQuery: "fitness coach berlin",
		Candidates: []creatorsearch.MatchCandidate{
			{Username: "a", DisplayName: "Anna", FollowerCount: 12000, RelevanceScore: creatorsearch.Float(0.95), MatchTier: creatorsearch.TierExact, MatchReason: "Berlin based coach"},
			{Username: "b", FollowerCount: 800, MatchTier: creatorsearch.TierPartial},
		},
		StrategyUsed:   creatorsearch.StrategyUsed{Strategy: creatorsearch.StrategyPrecise, Stage: creatorsearch.StageFallback},
		PrimaryFailure: "web-search: request timed out",
	})
}

func setupRunner(t *testing.T, output OutputFormat) (*Runner, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry.Init(logger)
	registry.Register(&echoTool{})
	registry.Register(&searchTool{})

	var buf bytes.Buffer
	return NewRunner(logger, &sync.Map{}, output).WithWriter(&buf), &buf
}

func TestRunner_ListTools(t *testing.T) {
	runner, buf := setupRunner(t, OutputText)
	require.NoError(t, runner.ListTools())
	assert.Contains(t, buf.String(), "cli_test_echo")
	assert.Contains(t, buf.String(), "Echo arguments")
	assert.NotContains(t, buf.String(), "second line")
}

func TestRunner_ListTools_JSON(t *testing.T) {
	runner, buf := setupRunner(t, OutputJSON)
	require.NoError(t, runner.ListTools())

	var entries []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "creator_search")
}

func TestRunner_HelpTool(t *testing.T) {
	runner, buf := setupRunner(t, OutputText)
	require.NoError(t, runner.HelpTool("cli-test-echo"))

	out := buf.String()
	assert.Contains(t, out, "Tool: cli_test_echo")
	assert.Contains(t, out, "--query")
	assert.Contains(t, out, "(required)")
	assert.Contains(t, out, "--max-results")
	assert.Contains(t, out, "[precise|smart]")

	assert.ErrorContains(t, runner.HelpTool("nonexistent"), "unknown tool")
}

func TestRunner_RunTool_Args(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]any
	}{
		{
			name: "json object",
			args: []string{`{"query": "cats"}`},
			want: map[string]any{"query": "cats"},
		},
		{
			name: "flags with types",
			args: []string{"--query=cats", "--max-results", "3", "--deep-analysis", "--tags=a, b"},
			want: map[string]any{"query": "cats", "max_results": float64(3), "deep_analysis": true, "tags": []any{"a", "b"}},
		},
		{
			name: "flags win over json",
			args: []string{"--query=dogs", `{"query": "cats", "strategy": "smart"}`},
			want: map[string]any{"query": "dogs", "strategy": "smart"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, buf := setupRunner(t, OutputText)
			require.NoError(t, runner.RunTool(context.Background(), "cli_test_echo", tt.args))

			var got map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunner_RunTool_Errors(t *testing.T) {
	runner, _ := setupRunner(t, OutputText)

	assert.ErrorContains(t, runner.RunTool(context.Background(), "nonexistent", nil), "unknown tool")
	assert.ErrorContains(t, runner.RunTool(context.Background(), "cli_test_echo", []string{"{invalid"}), "argument error")
	assert.ErrorContains(t, runner.RunTool(context.Background(), "cli_test_echo", []string{"--query"}), "requires a value")
	assert.ErrorContains(t, runner.RunTool(context.Background(), "cli_test_echo", []string{"bareword"}), "unexpected argument")
}

func TestRunner_RendersSearchResult(t *testing.T) {
	runner, buf := setupRunner(t, OutputText)
	require.NoError(t, runner.Call(context.Background(), "creator_search", map[string]any{"query": "x"}))

	out := buf.String()
	assert.Contains(t, out, "Query: fitness coach in berlin")
	assert.Contains(t, out, "Interpreted as: fitness coach berlin")
	assert.Contains(t, out, "Strategy: precise (fallback)")
	assert.Contains(t, out, "Primary strategy failed: web-search: request timed out")
	assert.Contains(t, out, "1. @a (Anna)")
	assert.Contains(t, out, "[exact]  followers: 12000  relevance: 0.95")
	assert.Contains(t, out, "2. @b")
	assert.Contains(t, out, "[partial]")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("@a")), bytes.Index(buf.Bytes(), []byte("@b")))
}

func TestRunner_SearchResultJSONOutput(t *testing.T) {
	runner, buf := setupRunner(t, OutputJSON)
	require.NoError(t, runner.Call(context.Background(), "creator_search", map[string]any{"query": "x"}))

	var res creatorsearch.NormalizedSearchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Len(t, res.Candidates, 2)
}

func TestPrintAnalysis(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printAnalysis(&buf, &creatorsearch.ContentAnalysis{
		Username:       "a",
		Status:         creatorsearch.AnalysisLimited,
		RelevanceScore: creatorsearch.Float(0.4),
		Explanation:    "Mostly cooking content",
	})

	out := buf.String()
	assert.Contains(t, out, "@a  status: limited  relevance: 0.40")
	assert.Contains(t, out, "limited mode")
	assert.Contains(t, out, "Mostly cooking content")
}

func TestToFlagName(t *testing.T) {
	assert.Equal(t, "max-results", toFlagName("max_results"))
	assert.Equal(t, "save-path", toFlagName("savePath"))
	assert.Equal(t, "query", toFlagName("query"))
}
