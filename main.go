package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	scoutcli "github.com/sammcj/creator-scout/internal/cli"
	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/registry"
	"github.com/sammcj/creator-scout/internal/tools"
	"github.com/sammcj/creator-scout/internal/tools/media"

	// Import all tool packages to register them
	_ "github.com/sammcj/creator-scout/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const shutdownTimeout = 30 * time.Second

// parseLogLevel parses the LOG_LEVEL environment variable, defaulting to warn.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard until the command decides where logs may go
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	registry.Init(logger)
	defer performCleanup(logger)

	app := &cli.Command{
		Name:    "creator-scout",
		Usage:   "Find creators by description and download their videos",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: append(serveFlags(),
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML config file (default: ~/.creator-scout/config.yaml)",
				Sources: cli.EnvVars(config.ConfigPathEnvVar),
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(scoutcli.OutputText),
				Usage:   "Output format for CLI commands (text or json)",
			},
		),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if path := cmd.String("config"); path != "" {
				if err := os.Setenv(config.ConfigPathEnvVar, path); err != nil {
					return ctx, err
				}
			}
			return ctx, nil
		},
		Action: serveAction(logger),
		Commands: []*cli.Command{
			serveProxyCommand(logger),
			searchCommand(logger),
			profileCommand(logger),
			analyseCommand(logger),
			downloadCommand(logger),
			toolsCommand(logger),
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("creator-scout version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// Nothing may be written to stdout or stderr in stdio mode
		if !isStdioMode.Load() {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// configureFileLogging sends logs to ~/.creator-scout/logs/creator-scout.log.
// When the file cannot be opened stdio mode discards and other modes use stderr.
func configureFileLogging(logger *logrus.Logger, stdio bool) {
	level := parseLogLevel()
	if stdio && level < logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	logrus.SetLevel(level)

	var fallback io.Writer = os.Stderr
	if stdio {
		fallback = io.Discard
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}

	logDir := filepath.Join(homeDir, ".creator-scout", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}

	file, err := os.OpenFile(filepath.Join(logDir, "creator-scout.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}

	debugLogFile.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", level.String()).Debug("Logging configured")
}

// configureConsoleLogging sends logs to stderr for interactive commands
func configureConsoleLogging(logger *logrus.Logger) {
	logger.SetOutput(os.Stderr)
	logrus.SetOutput(os.Stderr)
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Value:   "stdio",
			Usage:   "MCP transport type (stdio or http)",
		},
		&cli.StringFlag{
			Name:  "port",
			Value: "18080",
			Usage: "Port for the HTTP transport",
		},
		&cli.StringFlag{
			Name:  "auth-token",
			Usage: "When set, HTTP requests without this bearer token are rejected with 401",
		},
		&cli.StringFlag{
			Name:  "endpoint-path",
			Value: "/http",
			Usage: "Endpoint path for the HTTP transport",
		},
		&cli.DurationFlag{
			Name:  "session-timeout",
			Value: 30 * time.Minute,
			Usage: "Session timeout for the HTTP transport",
		},
		&cli.BoolFlag{
			Name:  "no-proxy",
			Usage: "Do not start the download intermediary alongside the HTTP transport",
		},
	}
}

// serveAction runs the MCP server, the default when no command is given
func serveAction(logger *logrus.Logger) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Present() {
			return fmt.Errorf("unknown command: %s", cmd.Args().First())
		}

		transport := cmd.String("transport")
		isStdioMode.Store(transport == "stdio")
		configureFileLogging(logger, isStdioMode.Load())

		if err := tools.InitGlobalErrorLogger(logger); err != nil {
			logger.WithError(err).Warn("Failed to initialise tool error logger")
		}

		if transport != "stdio" {
			logger.Infof("Starting creator-scout version %s (commit: %s, built: %s)", Version, Commit, BuildDate)
		}

		mcpSrv := newMCPServer(logger, transport)

		switch transport {
		case "stdio":
			return mcpserver.ServeStdio(mcpSrv)
		case "http":
			return serveHTTP(ctx, cmd, mcpSrv, logger)
		default:
			return fmt.Errorf("unsupported transport: %s", transport)
		}
	}
}

// newMCPServer registers every enabled tool, journalling failures
func newMCPServer(logger *logrus.Logger, transport string) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer("creator-scout", Version)

	enabledTools := registry.GetEnabledTools()
	logger.WithField("tool_count", len(enabledTools)).Debug("MCP server created, registering tools")

	for name, tool := range enabledTools {
		mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			current, ok := registry.GetTool(name)
			if !ok {
				return nil, fmt.Errorf("tool not found: %s", name)
			}

			args, ok := request.Params.Arguments.(map[string]any)
			if !ok {
				if request.Params.Arguments != nil {
					return nil, fmt.Errorf("invalid arguments type: expected object, got %T", request.Params.Arguments)
				}
				args = map[string]any{}
			}

			result, err := current.Execute(toolCtx, registry.GetLogger(), registry.GetCache(), args)
			if err != nil {
				logger.WithError(err).WithField("tool", name).Error("Tool execution failed")
				tools.GetGlobalErrorLogger().LogToolError(name, args, err, transport)
				return nil, fmt.Errorf("tool execution failed: %w", err)
			}
			return result, nil
		})
	}
	return mcpSrv
}

// serveHTTP runs the streamable HTTP transport and the download intermediary until ctx is done
func serveHTTP(ctx context.Context, cmd *cli.Command, mcpSrv *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	}

	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		opts = append(opts, mcpserver.WithSessionIdManager(&SessionManager{logger: logger}))
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))

	token := cmd.String("auth-token")
	if token != "" {
		logger.Info("Token authentication enabled")
	}

	mux := http.NewServeMux()
	mux.Handle(endpointPath, guardHTTP(token, logger, mcpserver.NewStreamableHTTPServer(mcpSrv, opts...)))

	servers := []*http.Server{{
		Addr:           ":" + port,
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   0, // streamed responses
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}}
	logger.Infof("Streamable HTTP server listening on :%s%s", port, endpointPath)

	if !cmd.Bool("no-proxy") {
		cfg := config.Get()
		addr, err := proxyListenAddr(cfg.ProxyBaseURL)
		if err != nil {
			return err
		}
		servers = append(servers, media.NewProxyServer(addr, media.NewProxyHandler(cfg, logger)))
		logger.Infof("Download intermediary listening on %s", addr)
	}

	return runServers(ctx, logger, servers...)
}

// runServers serves each server in an errgroup and shuts all of them down when ctx ends or one fails
func runServers(ctx context.Context, logger *logrus.Logger, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// proxyListenAddr derives the listen address from the configured intermediary base URL
func proxyListenAddr(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid download proxy URL %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func serveProxyCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve-proxy",
		Usage: "Run only the local download intermediary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: derived from CREATOR_SCOUT_PROXY_URL)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			configureConsoleLogging(logger)
			if logger.GetLevel() < logrus.InfoLevel {
				logger.SetLevel(logrus.InfoLevel)
			}

			cfg := config.Get()
			addr := cmd.String("addr")
			if addr == "" {
				var err error
				if addr, err = proxyListenAddr(cfg.ProxyBaseURL); err != nil {
					return err
				}
			}

			logger.Infof("Download intermediary listening on %s", addr)
			return runServers(ctx, logger, media.NewProxyServer(addr, media.NewProxyHandler(cfg, logger)))
		},
	}
}

func newRunner(logger *logrus.Logger, cmd *cli.Command) (*scoutcli.Runner, error) {
	configureConsoleLogging(logger)

	format := scoutcli.OutputFormat(cmd.String("format"))
	if format != scoutcli.OutputText && format != scoutcli.OutputJSON {
		return nil, fmt.Errorf("unsupported format %q (expected text or json)", format)
	}
	return scoutcli.NewRunner(logger, registry.GetCache(), format), nil
}

func searchCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search for creators matching a description",
		ArgsUsage: "<description>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   "web-enhanced, enhanced, precise, keyword or smart",
			},
			&cli.IntFlag{
				Name:    "max-results",
				Aliases: []string{"n"},
				Usage:   "Maximum number of creators to return",
			},
			&cli.FloatFlag{
				Name:  "min-score",
				Usage: "Minimum relevance score between 0 and 1",
			},
			&cli.BoolFlag{
				Name:  "deep",
				Usage: "Ask the backend for deeper analysis",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("a search description is required")
			}

			runner, err := newRunner(logger, cmd)
			if err != nil {
				return err
			}

			params := map[string]any{"query": query}
			if s := cmd.String("strategy"); s != "" {
				params["strategy"] = s
			}
			if cmd.IsSet("max-results") {
				params["max_results"] = float64(cmd.Int("max-results"))
			}
			if cmd.IsSet("min-score") {
				params["min_relevance_score"] = cmd.Float("min-score")
			}
			if cmd.Bool("deep") {
				params["deep_analysis"] = true
			}
			return runner.Call(ctx, "creator_search", params)
		},
	}
}

func profileCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "profile",
		Usage:     "Show a creator's full profile",
		ArgsUsage: "<username>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("exactly one username is required")
			}
			runner, err := newRunner(logger, cmd)
			if err != nil {
				return err
			}
			return runner.Call(ctx, "creator_profile", map[string]any{"username": cmd.Args().First()})
		},
	}
}

func analyseCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "analyse",
		Aliases:   []string{"analyze"},
		Usage:     "Assess how well a creator's content matches a description",
		ArgsUsage: "<username> <description>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "criteria",
				Aliases: []string{"c"},
				Usage:   "Specific criterion to check (repeatable)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) < 2 {
				return fmt.Errorf("a username and a description are required")
			}
			runner, err := newRunner(logger, cmd)
			if err != nil {
				return err
			}

			params := map[string]any{
				"username": args[0],
				"query":    strings.Join(args[1:], " "),
			}
			if criteria := cmd.StringSlice("criteria"); len(criteria) > 0 {
				items := make([]any, len(criteria))
				for i, c := range criteria {
					items[i] = c
				}
				params["criteria"] = items
			}
			return runner.Call(ctx, "creator_analysis", params)
		},
	}
}

func downloadCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Resolve a video link and save it",
		ArgsUsage: "<video-url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   media.DefaultFilename,
				Usage:   "File to write",
			},
			&cli.BoolFlag{
				Name:  "link-only",
				Usage: "Print the download link without saving",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("exactly one video URL is required")
			}
			runner, err := newRunner(logger, cmd)
			if err != nil {
				return err
			}

			params := map[string]any{"url": cmd.Args().First()}
			if !cmd.Bool("link-only") {
				dest, err := filepath.Abs(cmd.String("output"))
				if err != nil {
					return fmt.Errorf("invalid output path: %w", err)
				}
				params["save_path"] = dest
			}
			return runner.Call(ctx, "resolve_media", params)
		},
	}
}

func toolsCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "List, describe and run registered tools directly",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List enabled tools",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					runner, err := newRunner(logger, cmd)
					if err != nil {
						return err
					}
					return runner.ListTools()
				},
			},
			{
				Name:      "help",
				Usage:     "Show a tool's parameters",
				ArgsUsage: "<tool>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("exactly one tool name is required")
					}
					runner, err := newRunner(logger, cmd)
					if err != nil {
						return err
					}
					return runner.HelpTool(cmd.Args().First())
				},
			},
			{
				Name:            "run",
				Usage:           "Run a tool with --key=value flags or a JSON object",
				ArgsUsage:       "<tool> [args...]",
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					args := cmd.Args().Slice()
					if len(args) == 0 {
						return fmt.Errorf("a tool name is required")
					}
					runner, err := newRunner(logger, cmd)
					if err != nil {
						return err
					}
					return runner.RunTool(ctx, args[0], args[1:])
				},
			},
		},
	}
}

// performCleanup closes the log file and the error journal
func performCleanup(logger *logrus.Logger) {
	if file := debugLogFile.Load(); file != nil {
		_ = file.Close()
	}

	if err := tools.GetGlobalErrorLogger().Close(); err != nil {
		logger.WithError(err).Warn("Failed to close tool error logger")
	}
}

// guardHTTP rejects requests from non-local origins (403) and, when token is set,
// requests without a matching bearer token (401). Unknown protocol versions are only logged.
func guardHTTP(token string, logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if v := req.Header.Get("MCP-Protocol-Version"); v != "" && !isValidProtocolVersion(v) {
			logger.Warnf("Unsupported MCP Protocol Version: %s", v)
		}

		if origin := req.Header.Get("Origin"); origin != "" && !isValidOrigin(origin) {
			logger.WithField("origin", origin).Warn("Rejected request with non-local Origin")
			http.Error(w, "forbidden origin", http.StatusForbidden)
			return
		}

		if token != "" {
			presented, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn("Rejected request with missing or invalid bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="creator-scout"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, req)
	})
}

func isValidProtocolVersion(version string) bool {
	return slices.Contains([]string{"2025-06-18", "2025-03-26", "2024-11-05"}, version)
}

// isValidOrigin only admits local origins, guarding against DNS rebinding
func isValidOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return slices.Contains([]string{"localhost", "127.0.0.1", "::1"}, u.Hostname())
}

// SessionManager implements SessionIdManager with random session IDs
type SessionManager struct {
	logger *logrus.Logger
}

func (t *SessionManager) Generate() string {
	return "session-" + uuid.NewString()
}

func (t *SessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	return false, nil
}

func (t *SessionManager) Terminate(sessionID string) (bool, error) {
	t.logger.Debugf("Session terminated: %s", sessionID)
	return false, nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
