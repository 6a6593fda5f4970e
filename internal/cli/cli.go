// Package cli runs creator-scout tools straight from the command line,
// in-process through the tool registry with no MCP server in between.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
)

// OutputFormat controls how tool results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

var (
	headingColour  = color.New(color.Bold)
	usernameColour = color.New(color.FgCyan, color.Bold)
	exactColour    = color.New(color.FgGreen)
	partialColour  = color.New(color.FgYellow)
	faintColour    = color.New(color.Faint)
	warnColour     = color.New(color.FgRed)
)

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	output OutputFormat
	out    io.Writer
}

// NewRunner creates a Runner that writes to stdout.
func NewRunner(logger *logrus.Logger, cache *sync.Map, output OutputFormat) *Runner {
	return &Runner{logger: logger, cache: cache, output: output, out: os.Stdout}
}

// WithWriter redirects the runner's output.
func (r *Runner) WithWriter(w io.Writer) *Runner {
	r.out = w
	return r
}

// ListTools prints all enabled tools with their descriptions.
func (r *Runner) ListTools() error {
	names := registry.GetEnabledToolNames()

	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		tool, ok := registry.GetTool(name)
		if !ok {
			continue
		}
		entries = append(entries, entry{Name: name, Description: firstLine(tool.Definition().Description)})
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, entries)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Description)
	}
	return w.Flush()
}

// HelpTool prints the parameters of a single tool.
func (r *Runner) HelpTool(name string) error {
	resolved, found := resolveTool(name)
	if !found {
		return fmt.Errorf("unknown tool: %s", name)
	}
	tool, _ := registry.GetTool(resolved)
	def := tool.Definition()

	if r.output == OutputJSON {
		return writeJSON(r.out, def)
	}

	_, _ = headingColour.Fprintf(r.out, "Tool: %s\n\n", def.Name)
	if def.Description != "" {
		_, _ = fmt.Fprintf(r.out, "%s\n\n", def.Description)
	}

	props := def.InputSchema.Properties
	if len(props) == 0 {
		_, _ = fmt.Fprintln(r.out, "No parameters.")
		return nil
	}

	required := make(map[string]bool, len(def.InputSchema.Required))
	for _, req := range def.InputSchema.Required {
		required[req] = true
	}

	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	slices.Sort(names)

	_, _ = fmt.Fprintln(r.out, "Parameters:")
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, pName := range names {
		pMap, ok := props[pName].(map[string]any)
		if !ok {
			continue
		}
		pType, _ := pMap["type"].(string)
		pDesc, _ := pMap["description"].(string)

		reqMark := ""
		if required[pName] {
			reqMark = " (required)"
		}
		_, _ = fmt.Fprintf(w, "  --%s\t%s\t%s%s%s\n", toFlagName(pName), pType, firstLine(pDesc), reqMark, formatEnum(pMap))
	}
	return w.Flush()
}

// RunTool executes a tool by name. args are --key=value flags, --key value pairs,
// bare --flag booleans or a JSON object; flags win over JSON.
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	def, err := r.definition(name)
	if err != nil {
		return err
	}

	params, err := newArgParser(def).parse(args)
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}
	return r.Call(ctx, def.Name, params)
}

// Call executes a tool with already parsed parameters and renders the result.
func (r *Runner) Call(ctx context.Context, name string, params map[string]any) error {
	resolved, found := resolveTool(name)
	if !found {
		return fmt.Errorf("unknown tool: %s (run 'creator-scout tools list' to see available tools)", name)
	}
	tool, _ := registry.GetTool(resolved)

	result, err := tool.Execute(ctx, r.logger, r.cache, params)
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}
	return r.renderResult(resolved, result)
}

func (r *Runner) definition(name string) (mcp.Tool, error) {
	resolved, found := resolveTool(name)
	if !found {
		return mcp.Tool{}, fmt.Errorf("unknown tool: %s (run 'creator-scout tools list' to see available tools)", name)
	}
	tool, _ := registry.GetTool(resolved)
	return tool.Definition(), nil
}

// renderResult prints a tool result, pretty printing the creator tools in text mode.
func (r *Runner) renderResult(toolName string, result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}

	if r.output == OutputJSON {
		for _, content := range result.Content {
			if c, ok := content.(mcp.TextContent); ok && json.Valid([]byte(c.Text)) {
				_, err := fmt.Fprintln(r.out, c.Text)
				return err
			}
		}
		return writeJSON(r.out, result)
	}

	for _, content := range result.Content {
		c, ok := content.(mcp.TextContent)
		if !ok {
			data, _ := json.MarshalIndent(content, "", "  ")
			_, _ = fmt.Fprintln(r.out, string(data))
			continue
		}
		if !r.renderCreatorText(toolName, c.Text) {
			_, _ = fmt.Fprintln(r.out, c.Text)
		}
	}

	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

func (r *Runner) renderCreatorText(toolName, text string) bool {
	switch toolName {
	case "creator_search":
		var res creatorsearch.NormalizedSearchResult
		if err := json.Unmarshal([]byte(text), &res); err != nil {
			return false
		}
		printSearchResult(r.out, &res)
		return true
	case "creator_profile":
		var c creatorsearch.MatchCandidate
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return false
		}
		printCandidate(r.out, 0, &c)
		return true
	case "creator_analysis":
		var a creatorsearch.ContentAnalysis
		if err := json.Unmarshal([]byte(text), &a); err != nil {
			return false
		}
		printAnalysis(r.out, &a)
		return true
	}
	return false
}

func printSearchResult(w io.Writer, res *creatorsearch.NormalizedSearchResult) {
	_, _ = headingColour.Fprintf(w, "Query: %s\n", res.OriginalQuery)
	if res.EffectiveQuery != "" && res.EffectiveQuery != res.OriginalQuery {
		_, _ = fmt.Fprintf(w, "Interpreted as: %s\n", res.EffectiveQuery)
	}
	if len(res.RequiredCriteria) > 0 {
		_, _ = fmt.Fprintf(w, "Criteria: %s\n", strings.Join(res.RequiredCriteria, "; "))
	}
	_, _ = faintColour.Fprintf(w, "Strategy: %s (%s)\n", res.StrategyUsed.Strategy, res.StrategyUsed.Stage)
	if res.PrimaryFailure != "" {
		_, _ = warnColour.Fprintf(w, "Primary strategy failed: %s\n", res.PrimaryFailure)
	}
	_, _ = fmt.Fprintln(w)

	if len(res.Candidates) == 0 {
		_, _ = fmt.Fprintln(w, "No matching creators found.")
		return
	}
	for i := range res.Candidates {
		printCandidate(w, i+1, &res.Candidates[i])
	}
}

func printCandidate(w io.Writer, position int, c *creatorsearch.MatchCandidate) {
	if position > 0 {
		_, _ = fmt.Fprintf(w, "%d. ", position)
	}
	_, _ = usernameColour.Fprintf(w, "@%s", c.Username)
	if c.DisplayName != "" && c.DisplayName != c.Username {
		_, _ = fmt.Fprintf(w, " (%s)", c.DisplayName)
	}
	if c.Verified {
		_, _ = fmt.Fprint(w, " ✓")
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "   %s  followers: %d", tierLabel(c.MatchTier), c.FollowerCount)
	if c.RelevanceScore != nil {
		_, _ = fmt.Fprintf(w, "  relevance: %.2f", *c.RelevanceScore)
	}
	_, _ = fmt.Fprintln(w)

	if c.MatchReason != "" {
		_, _ = fmt.Fprintf(w, "   %s\n", c.MatchReason)
	}
	if c.Bio != "" {
		_, _ = faintColour.Fprintf(w, "   %s\n", firstLine(c.Bio))
	}
	if len(c.Videos) > 0 {
		_, _ = faintColour.Fprintf(w, "   %d videos\n", len(c.Videos))
	}
}

func printAnalysis(w io.Writer, a *creatorsearch.ContentAnalysis) {
	_, _ = usernameColour.Fprintf(w, "@%s", a.Username)
	_, _ = fmt.Fprintf(w, "  status: %s", a.Status)
	if a.RelevanceScore != nil {
		_, _ = fmt.Fprintf(w, "  relevance: %.2f", *a.RelevanceScore)
	}
	_, _ = fmt.Fprintln(w)
	if a.Degraded() {
		_, _ = warnColour.Fprintln(w, "Analysis ran in limited mode; thumbnails were not assessed.")
	}
	if a.Explanation != "" {
		_, _ = fmt.Fprintln(w, a.Explanation)
	}
	for _, t := range a.ThumbnailAnalysis {
		_, _ = faintColour.Fprintf(w, "  - %s\n", t)
	}
}

func tierLabel(tier creatorsearch.MatchTier) string {
	switch tier {
	case creatorsearch.TierExact:
		return exactColour.Sprint("[exact]")
	case creatorsearch.TierPartial:
		return partialColour.Sprint("[partial]")
	default:
		return faintColour.Sprint("[unscored]")
	}
}

// resolveTool accepts kebab-case names for snake_case tools.
func resolveTool(name string) (string, bool) {
	if _, ok := registry.GetTool(name); ok {
		return name, true
	}
	if snake := strings.ReplaceAll(name, "-", "_"); snake != name {
		if _, ok := registry.GetTool(snake); ok {
			return snake, true
		}
	}
	return name, false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}

// toFlagName converts camelCase or snake_case to kebab-case.
func toFlagName(s string) string {
	s = strings.ReplaceAll(s, "_", "-")
	var out strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out.WriteByte('-')
			}
			out.WriteRune(r + 32)
		} else {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func formatEnum(pMap map[string]any) string {
	var vals []string
	switch enum := pMap["enum"].(type) {
	case []any:
		for _, v := range enum {
			vals = append(vals, fmt.Sprint(v))
		}
	case []string:
		vals = enum
	}
	if len(vals) == 0 {
		return ""
	}
	sort.Strings(vals)
	return " [" + strings.Join(vals, "|") + "]"
}
