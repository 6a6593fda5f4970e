package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
	"github.com/sammcj/creator-scout/internal/utils/httpclient"
)

// DownloadPath is where the intermediary serves downloads
const DownloadPath = "/api/download"

// ProxyHandler is the same-origin download intermediary.
// With proxy=true it streams the upstream bytes; otherwise it returns the backend's resolved link.
type ProxyHandler struct {
	client  *http.Client
	backend VideoResolver
	timeout time.Duration
	logger  *logrus.Logger
}

// NewProxyHandler creates the intermediary from configuration
func NewProxyHandler(cfg *config.Config, logger *logrus.Logger) *ProxyHandler {
	return NewProxyHandlerWith(httpclient.New(0, logger), backend.NewClient(cfg, logger), cfg.Timeouts.Download, logger)
}

// NewProxyHandlerWith creates the intermediary from explicit parts
func NewProxyHandlerWith(client *http.Client, videoResolver VideoResolver, timeout time.Duration, logger *logrus.Logger) *ProxyHandler {
	return &ProxyHandler{
		client:  client,
		backend: videoResolver,
		timeout: timeout,
		logger:  logger,
	}
}

// NewProxyServer wires the handler into an HTTP server listening on addr
func NewProxyServer(addr string, h *ProxyHandler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(DownloadPath, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSONError(w, http.StatusBadRequest, "url parameter is required")
		return
	}

	proxy, _ := strconv.ParseBool(r.URL.Query().Get("proxy"))

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if proxy {
		h.stream(ctx, w, target)
		return
	}
	h.forwardResolution(ctx, w, target)
}

// stream fetches target and copies its body to the client as an attachment
func (h *ProxyHandler) stream(ctx context.Context, w http.ResponseWriter, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %v", err))
		return
	}
	req.Header.Set("User-Agent", backend.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).WithField("url", target).Warn("Upstream media fetch failed")
		writeJSONError(w, upstreamStatus(err), fmt.Sprintf("upstream fetch failed: %v", err))
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			h.logger.WithError(closeErr).Warn("Failed to close upstream body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DefaultFilename))
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		// Headers are already sent, so the client sees a truncated body
		h.logger.WithError(err).WithFields(logrus.Fields{
			"url":     target,
			"written": written,
		}).Warn("Media stream interrupted")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"url":   target,
		"bytes": written,
	}).Debug("Media streamed")
}

// forwardResolution relays the backend's resolution JSON, its link normalised to `url`
func (h *ProxyHandler) forwardResolution(ctx context.Context, w http.ResponseWriter, target string) {
	if h.backend == nil {
		writeJSONError(w, http.StatusBadGateway, "no backend configured")
		return
	}

	doc, err := h.backend.ResolveVideoDocument(ctx, h.logger, target)
	if err != nil {
		h.logger.WithError(err).WithField("url", target).Warn("Backend media resolution failed")
		writeJSONError(w, upstreamStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// upstreamStatus maps a failed upstream call to 504 for timeouts and 502 otherwise
func upstreamStatus(err error) int {
	var te *creatorsearch.TransportError
	if errors.As(err, &te) && te.Timeout {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
