package media

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools"
	"github.com/sammcj/creator-scout/internal/utils/httpclient"
)

var (
	sharedResolver *Resolver
	resolverOnce   sync.Once
)

// DefaultResolver returns the process-wide resolver, built from configuration on first use
func DefaultResolver(logger *logrus.Logger) *Resolver {
	resolverOnce.Do(func() {
		sharedResolver = NewResolver(config.Get(), logger)
	})
	return sharedResolver
}

// ResolveMediaTool resolves a video reference and optionally saves it to disk
type ResolveMediaTool struct {
	resolver *Resolver
	client   *http.Client
}

func init() {
	registry.Register(&ResolveMediaTool{})
}

// NewResolveMediaTool creates the tool over an explicit resolver and download client
func NewResolveMediaTool(resolver *Resolver, client *http.Client) *ResolveMediaTool {
	return &ResolveMediaTool{resolver: resolver, client: client}
}

// resolveMediaResult is the tool's JSON response
type resolveMediaResult struct {
	URL          string    `json:"url"`
	Class        Class     `json:"class"`
	DownloadURL  string    `json:"download_url,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	SavedTo      string    `json:"saved_to,omitempty"`
	BytesWritten int64     `json:"bytes_written,omitempty"`
	Steps        []Attempt `json:"steps"`
}

// Definition returns the tool's definition for MCP registration
func (t *ResolveMediaTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"resolve_media",
		mcp.WithDescription(`Resolve a creator video URL into a downloadable link, optionally saving the file.

CDN links are returned as-is. Other links go through the local download intermediary, then the backend's resolver.`),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Video page or media URL"),
		),
		mcp.WithString("save_path",
			mcp.Description("Optional absolute file path to save the video to"),
		),
	)
}

// Execute resolves the reference
func (t *ResolveMediaTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	rawURL, ok := args["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("missing or invalid required parameter: url")
	}

	savePath, _ := args["save_path"].(string)
	savePath = strings.TrimSpace(savePath)
	if savePath != "" && !filepath.IsAbs(savePath) {
		return nil, fmt.Errorf("save_path must be an absolute path")
	}

	resolver := t.resolver
	if resolver == nil {
		resolver = DefaultResolver(logger)
	}
	client := t.client
	if client == nil {
		client = httpclient.New(0, logger)
	}

	logger.WithField("url", rawURL).Info("Resolving media reference")

	res, err := resolver.Resolve(ctx, logger, rawURL)
	if err != nil {
		return nil, fmt.Errorf("media resolution failed: %w", err)
	}

	out := resolveMediaResult{
		URL:         res.Reference.URL,
		Class:       res.Reference.Class,
		DownloadURL: res.DownloadURL,
		ContentType: res.ContentType,
		Steps:       res.Steps,
	}

	if savePath != "" {
		written, err := SaveToFile(ctx, logger, client, res, savePath)
		if err != nil {
			return nil, fmt.Errorf("failed to save media: %w", err)
		}
		out.SavedTo = savePath
		out.BytesWritten = written
		return tools.JSONResult(out)
	}

	if res.Stream != nil {
		// Nothing to write the stream to, so hand back the intermediary link instead
		_ = res.Stream.Close()
		out.DownloadURL = resolver.ProxyLink(res.Steps[len(res.Steps)-1].URL)
	}
	return tools.JSONResult(out)
}

// ProvideExtendedInfo provides detailed usage information for the resolve_media tool
func (t *ResolveMediaTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description:    "Resolve a CDN link",
				Arguments:      map[string]any{"url": "https://v16m.tiktokcdn.com/video/abc.mp4"},
				ExpectedResult: "class directCdn with the same URL as download_url and no network call",
			},
			{
				Description: "Save a video page to disk",
				Arguments: map[string]any{
					"url":       "https://www.tiktok.com/@creator/video/7312345678901234567",
					"save_path": "/tmp/creator-video.mp4",
				},
				ExpectedResult: "saved_to and bytes_written, with steps listing every resolution attempt",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "media resolution already in progress",
				Solution: "Another call is resolving the same URL; wait for it to finish and retry.",
			},
			{
				Problem:  "could not resolve media",
				Solution: "Every step failed; the error lists each step's cause. Check the download proxy is running (serve-proxy) and the backend is reachable.",
			},
		},
		ParameterDetails: map[string]string{
			"save_path": "Absolute path; the parent directory is created and a concurrent writer to the same path is waited for",
		},
		WhenToUse:    "Turning a creator's video link into a file or a direct download link",
		WhenNotToUse: "Searching for creators; use creator_search",
	}
}
