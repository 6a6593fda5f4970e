package unified

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
)

var (
	sharedOrchestrator *Orchestrator
	sharedOnce         sync.Once
)

// defaultOrchestrator builds the process-wide orchestrator on first use so configuration is read after start-up
func defaultOrchestrator(logger *logrus.Logger) *Orchestrator {
	sharedOnce.Do(func() {
		sharedOrchestrator = NewOrchestrator(backend.NewClient(config.Get(), logger))
	})
	return sharedOrchestrator
}

// CreatorSearchTool finds creator profiles matching a natural language description
type CreatorSearchTool struct {
	orchestrator *Orchestrator
}

func init() {
	registry.Register(&CreatorSearchTool{})
	registry.Register(&CreatorProfileTool{})
	registry.Register(&CreatorAnalysisTool{})
}

// NewCreatorSearchTool creates the search tool over an explicit orchestrator
func NewCreatorSearchTool(o *Orchestrator) *CreatorSearchTool {
	return &CreatorSearchTool{orchestrator: o}
}

func (t *CreatorSearchTool) orchestratorFor(logger *logrus.Logger) *Orchestrator {
	if t.orchestrator != nil {
		return t.orchestrator
	}
	return defaultOrchestrator(logger)
}

// Definition returns the tool's definition for MCP registration
func (t *CreatorSearchTool) Definition() mcp.Tool {
	strategies := make([]string, 0, len(creatorsearch.AllStrategies))
	for _, s := range creatorsearch.AllStrategies {
		strategies = append(strategies, string(s))
	}

	description := fmt.Sprintf(`Find social media creators matching a natural language description and return ranked profiles with relevance explanations.

Strategies: [%s]
Default Strategy: %s

- web-enhanced and enhanced fall back to precise once if they fail
- precise splits results into exact and partial matches against the extracted criteria
- smart resolves the description to a single username
- keyword is a plain user search that accepts follower, following and likes criteria

Examples:
- {"query": "a tech influencer from south africa"}
- {"query": "vegan baker in melbourne with over 50k followers", "strategy": "precise", "max_results": 10}
- {"query": "chess streamer", "strategy": "keyword", "criteria": {"min_followers": 10000}}`,
		strings.Join(strategies, ", "), creatorsearch.DefaultStrategy)

	return mcp.NewTool(
		"creator_search",
		mcp.WithDescription(description),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language description of the creator"),
		),
		mcp.WithString("strategy",
			mcp.Description("Search strategy"),
			mcp.DefaultString(string(creatorsearch.DefaultStrategy)),
			mcp.Enum(strategies...),
		),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of candidates (1-%d)", creatorsearch.MaxResultsCeiling)),
			mcp.DefaultNumber(creatorsearch.DefaultMaxResults),
		),
		mcp.WithNumber("min_relevance_score",
			mcp.Description("Minimum relevance score between 0 and 1 (enhanced and web-enhanced only)"),
		),
		mcp.WithBoolean("deep_analysis",
			mcp.Description("Ask the keyword strategy to analyse each profile's content"),
			mcp.DefaultBool(false),
		),
		mcp.WithObject("criteria",
			mcp.Description("Keyword strategy filters: min_followers, max_followers, min_following, max_following, min_likes, max_likes, verified"),
		),
	)
}

// Execute runs the search
func (t *CreatorSearchTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	query, strategy, err := parseSearchArgs(args)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"strategy":    strategy,
		"query":       query.Text,
		"max_results": query.EffectiveMaxResults(),
	}).Info("Executing creator search")

	result, err := t.orchestratorFor(logger).Search(ctx, logger, query, strategy)
	if err != nil {
		return nil, fmt.Errorf("creator search failed: %w", err)
	}
	return tools.JSONResult(result)
}

// parseSearchArgs converts MCP arguments into a query and strategy
func parseSearchArgs(args map[string]any) (creatorsearch.SearchQuery, creatorsearch.Strategy, error) {
	var query creatorsearch.SearchQuery

	text, ok := args["query"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return query, "", fmt.Errorf("missing or invalid required parameter: query")
	}
	query.Text = strings.TrimSpace(text)

	name, _ := args["strategy"].(string)
	strategy, err := creatorsearch.ParseStrategy(name)
	if err != nil {
		return query, "", err
	}

	if n, ok := args["max_results"].(float64); ok {
		if n < 1 {
			return query, "", fmt.Errorf("max_results must be at least 1")
		}
		query.MaxResults = int(n)
	}

	if score, ok := args["min_relevance_score"].(float64); ok {
		if score < 0 || score > 1 {
			return query, "", fmt.Errorf("min_relevance_score must be between 0 and 1")
		}
		query.MinRelevanceScore = score
	}

	if deep, ok := args["deep_analysis"].(bool); ok {
		query.DeepAnalysis = deep
	}

	if raw, ok := args["criteria"].(map[string]any); ok && len(raw) > 0 {
		query.Criteria = parseCriteria(raw)
	}

	return query, strategy, nil
}

func parseCriteria(raw map[string]any) *creatorsearch.Criteria {
	intArg := func(key string) *int {
		if v, ok := raw[key].(float64); ok {
			n := int(v)
			return &n
		}
		return nil
	}

	criteria := &creatorsearch.Criteria{
		MinFollowers: intArg("min_followers"),
		MaxFollowers: intArg("max_followers"),
		MinFollowing: intArg("min_following"),
		MaxFollowing: intArg("max_following"),
		MinLikes:     intArg("min_likes"),
		MaxLikes:     intArg("max_likes"),
	}
	if v, ok := raw["verified"].(bool); ok {
		criteria.Verified = &v
	}
	return criteria
}

// ProvideExtendedInfo provides detailed usage information for the creator search tool
func (t *CreatorSearchTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Default web-enhanced search",
				Arguments: map[string]any{
					"query": "a tech influencer from south africa",
				},
				ExpectedResult: "Up to 5 candidates ordered exact, partial, then unscored, with relevance scores and match reasons",
			},
			{
				Description: "Criteria matched search",
				Arguments: map[string]any{
					"query":       "fitness coach in berlin with over 10k followers",
					"strategy":    "precise",
					"max_results": 3,
				},
				ExpectedResult: "Exact matches first, then partial matches up to the cap, plus the criteria the backend extracted",
			},
			{
				Description: "Resolve a description to one account",
				Arguments: map[string]any{
					"query":    "the guy who reviews knives in slow motion",
					"strategy": "smart",
				},
				ExpectedResult: "Zero or one candidate; a confident match is enriched with the full profile",
			},
		},
		CommonPatterns: []string{
			"Search first, then call creator_analysis on a promising username for a deeper relevance check",
			"Use resolve_media on a candidate's video links to obtain a downloadable file",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "Both the primary and fallback strategies failed",
				Solution: "Check that the backend at CREATOR_SCOUT_API_URL is reachable; the error names both causes.",
			},
			{
				Problem:  "Result reports strategy_used.stage = fallback",
				Solution: "The primary strategy failed and precise search answered instead; primary_failure holds the reason.",
			},
		},
		ParameterDetails: map[string]string{
			"strategy":            "web-enhanced (default), enhanced, precise, keyword or smart",
			"max_results":         fmt.Sprintf("Defaults to %d, capped at %d", creatorsearch.DefaultMaxResults, creatorsearch.MaxResultsCeiling),
			"min_relevance_score": "Forwarded to the backend for ranked strategies",
			"criteria":            "Only understood by the keyword strategy",
		},
		WhenToUse:    "Finding creators by description, niche, location or audience size",
		WhenNotToUse: "Looking up a username you already know; use creator_profile instead",
	}
}
