package backend

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/utils/httpclient"
)

const (
	// UserAgent for API requests
	UserAgent = httpclient.DefaultUserAgent

	// MaxResponseSize bounds backend bodies (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Client issues one request per call against the configured backend deployment.
// It never retries; fallback is the orchestrator's concern.
type Client struct {
	baseURL      string
	httpClient   HTTPClient
	shortTimeout time.Duration
	longTimeout  time.Duration
}

// NewClient creates a backend client from configuration
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return NewClientWithHTTP(cfg.APIBaseURL, NewRateLimitedHTTPClient(cfg.RateLimit, logger), cfg.Timeouts.Short, cfg.Timeouts.Long)
}

// NewClientWithHTTP creates a backend client around an existing HTTP client
func NewClientWithHTTP(baseURL string, httpClient HTTPClient, shortTimeout, longTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   httpClient,
		shortTimeout: shortTimeout,
		longTimeout:  longTimeout,
	}
}

// BaseURL returns the backend deployment this client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Search dispatches to the endpoint for strategy
func (c *Client) Search(ctx context.Context, logger *logrus.Logger, strategy creatorsearch.Strategy, query creatorsearch.SearchQuery) (*RawResponse, error) {
	switch strategy {
	case creatorsearch.StrategySmart:
		return c.SmartSearch(ctx, logger, query)
	case creatorsearch.StrategyKeyword:
		return c.KeywordSearch(ctx, logger, query)
	case creatorsearch.StrategyEnhanced:
		return c.EnhancedSearch(ctx, logger, query)
	case creatorsearch.StrategyPrecise:
		return c.PreciseSearch(ctx, logger, query)
	case creatorsearch.StrategyWebEnhanced:
		return c.WebEnhancedSearch(ctx, logger, query)
	default:
		return nil, fmt.Errorf("unsupported search strategy: %s", strategy)
	}
}

// SmartSearch resolves free text to a single username with a confidence and explanation
func (c *Client) SmartSearch(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery) (*RawResponse, error) {
	formatted := creatorsearch.FormatQuery(creatorsearch.StrategySmart, query.Text)
	body, err := c.makeRequest(ctx, logger, endpointSmart, "", smartSearchRequest{Query: formatted})
	if err != nil {
		return nil, err
	}
	return c.envelope(creatorsearch.StrategySmart, query.Text, formatted, body), nil
}

// KeywordSearch runs the plain keyword user search
func (c *Client) KeywordSearch(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery) (*RawResponse, error) {
	req := keywordSearchRequest{
		Query:        query.Text,
		Count:        query.EffectiveMaxResults(),
		Criteria:     query.Criteria,
		DeepAnalysis: query.DeepAnalysis,
	}
	body, err := c.makeRequest(ctx, logger, endpointKeyword, "", req)
	if err != nil {
		return nil, err
	}
	return c.envelope(creatorsearch.StrategyKeyword, query.Text, query.Text, body), nil
}

// EnhancedSearch runs the AI-ranked search
func (c *Client) EnhancedSearch(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery) (*RawResponse, error) {
	req := rankedSearchRequest{
		Query:             query.Text,
		MaxResults:        query.EffectiveMaxResults(),
		MinRelevanceScore: query.MinRelevanceScore,
	}
	body, err := c.makeRequest(ctx, logger, endpointEnhanced, "", req)
	if err != nil {
		return nil, err
	}
	return c.envelope(creatorsearch.StrategyEnhanced, query.Text, query.Text, body), nil
}

// PreciseSearch runs the criteria-matched search with exact and partial tiers
func (c *Client) PreciseSearch(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery) (*RawResponse, error) {
	req := preciseSearchRequest{
		Query:      query.Text,
		MaxResults: query.EffectiveMaxResults(),
	}
	body, err := c.makeRequest(ctx, logger, endpointPrecise, "", req)
	if err != nil {
		return nil, err
	}
	return c.envelope(creatorsearch.StrategyPrecise, query.Text, query.Text, body), nil
}

// WebEnhancedSearch runs the search augmented with external web evidence
func (c *Client) WebEnhancedSearch(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery) (*RawResponse, error) {
	req := rankedSearchRequest{
		Query:             query.Text,
		MaxResults:        query.EffectiveMaxResults(),
		MinRelevanceScore: query.MinRelevanceScore,
	}
	body, err := c.makeRequest(ctx, logger, endpointWebEnhanced, "", req)
	if err != nil {
		return nil, err
	}
	return c.envelope(creatorsearch.StrategyWebEnhanced, query.Text, query.Text, body), nil
}

// GetProfile fetches one full profile by username
func (c *Client) GetProfile(ctx context.Context, logger *logrus.Logger, username string) ([]byte, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	return c.makeRequest(ctx, logger, endpointProfile, url.PathEscape(username), nil)
}

// AnalyseContent requests a deep relevance assessment of one profile
func (c *Client) AnalyseContent(ctx context.Context, logger *logrus.Logger, username, query string, criteria []string) ([]byte, error) {
	if criteria == nil {
		criteria = []string{}
	}
	req := analysisRequest{
		Username: strings.TrimPrefix(username, "@"),
		Query:    query,
		Criteria: criteria,
	}
	return c.makeRequest(ctx, logger, endpointAnalysis, "", req)
}

// ResolveVideo asks the backend for a playable link to a hosted video
func (c *Client) ResolveVideo(ctx context.Context, logger *logrus.Logger, videoURL string) (string, error) {
	doc, err := c.ResolveVideoDocument(ctx, logger, videoURL)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(doc, "url").Str, nil
}

// ResolveVideoDocument returns the backend's /resolve-video JSON with the link always under `url`.
// Older deployments answer with `play_url`; every other field is passed through untouched.
func (c *Client) ResolveVideoDocument(ctx context.Context, logger *logrus.Logger, videoURL string) ([]byte, error) {
	if strings.TrimSpace(videoURL) == "" {
		return nil, fmt.Errorf("video url is required")
	}
	body, err := c.makeRequest(ctx, logger, endpointResolve, "?url="+url.QueryEscape(videoURL), nil)
	if err != nil {
		return nil, err
	}
	return normaliseResolution(body)
}

var playURLAliases = []string{"play_url", "playUrl"}

func normaliseResolution(body []byte) ([]byte, error) {
	failure := func(reason string) error {
		return &creatorsearch.NormalizationError{Strategy: creatorsearch.Strategy(endpointResolve.name), Reason: reason}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, failure("response is not an object")
	}

	if link := gjson.GetBytes(body, "url"); link.Type != gjson.String || link.Str == "" {
		delete(doc, "url")
		for _, alias := range playURLAliases {
			if link := gjson.GetBytes(body, alias); link.Type == gjson.String && link.Str != "" {
				doc["url"] = json.RawMessage(link.Raw)
				break
			}
		}
	}
	if _, ok := doc["url"]; !ok {
		return nil, failure("response carries no playable url")
	}
	for _, alias := range playURLAliases {
		delete(doc, alias)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding resolution: %w", err)
	}
	return out, nil
}

func (c *Client) envelope(strategy creatorsearch.Strategy, original, sent string, body []byte) *RawResponse {
	return &RawResponse{
		Strategy:      strategy,
		OriginalQuery: original,
		SentQuery:     sent,
		Body:          body,
	}
}

// makeRequest performs one round trip and classifies every failure as a TransportError
func (c *Client) makeRequest(ctx context.Context, logger *logrus.Logger, ep endpoint, pathSuffix string, payload any) ([]byte, error) {
	reqURL := c.baseURL + ep.path + pathSuffix

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", ep.name, err)
		}
		body = bytes.NewReader(encoded)
	}

	timeout := c.timeoutFor(ep.long)
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, ep.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.WithFields(logrus.Fields{
		"url":      reqURL,
		"endpoint": ep.name,
		"timeout":  timeout.String(),
	}).Debug("Making backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportFailure(ep.name, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	// Handle gzip decompression if the transport did not
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &creatorsearch.TransportError{Endpoint: ep.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to create gzip reader: %w", err)}
		}
		defer func() {
			if closeErr := gzipReader.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close gzip reader")
			}
		}()
		reader = gzipReader
	}

	respBody, err := io.ReadAll(io.LimitReader(reader, MaxResponseSize))
	if err != nil {
		return nil, classifyTransportFailure(ep.name, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(respBody)
		logger.WithFields(logrus.Fields{
			"endpoint":    ep.name,
			"status_code": resp.StatusCode,
			"detail":      detail,
		}).Error("Backend request failed")

		return nil, &creatorsearch.TransportError{
			Endpoint:   ep.name,
			StatusCode: resp.StatusCode,
			Detail:     detail,
		}
	}

	logger.WithFields(logrus.Fields{
		"endpoint":      ep.name,
		"status_code":   resp.StatusCode,
		"response_size": len(respBody),
	}).Debug("Backend request successful")

	return respBody, nil
}

// classifyTransportFailure converts a client-side failure into a TransportError
func classifyTransportFailure(endpointName string, err error) error {
	te := &creatorsearch.TransportError{Endpoint: endpointName, Err: err}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}

// errorDetail extracts the structured error message from a failed response, if any
func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"detail", "message", "error"} {
		res := gjson.GetBytes(body, path)
		if !res.Exists() {
			continue
		}
		if res.Type == gjson.String {
			return res.String()
		}
		return res.Raw
	}
	return ""
}
