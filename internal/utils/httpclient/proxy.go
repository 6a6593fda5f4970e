// Package httpclient builds the outbound clients used for backend and media traffic.
package httpclient

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultUserAgent is sent when a request does not set its own
const DefaultUserAgent = "creator-scout/1.0"

// ProxyEnvironmentVariables are checked in order; the first usable value wins
var ProxyEnvironmentVariables = []string{
	"HTTPS_PROXY",
	"https_proxy",
	"HTTP_PROXY",
	"http_proxy",
}

// unexpanded shell references left behind by some launchers
var placeholderProxies = []string{"$HTTPS_PROXY", "$HTTP_PROXY"}

// New returns a client routed through the configured outbound proxy, if any.
// A zero timeout leaves the deadline to the request context.
func New(timeout time.Duration, logger *logrus.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if raw := getProxyURL(); raw != "" {
		proxy, err := url.Parse(raw)
		switch {
		case err != nil:
			logWith(logger, raw).WithError(err).Warn("Ignoring unparseable outbound proxy")
		default:
			transport.Proxy = http.ProxyURL(proxy)
			logWith(logger, raw).Debug("Routing outbound requests through proxy")
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: transport},
	}
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", DefaultUserAgent)
	return t.next.RoundTrip(clone)
}

func getProxyURL() string {
	for _, name := range ProxyEnvironmentVariables {
		value := os.Getenv(name)
		if value != "" && !slices.Contains(placeholderProxies, value) {
			return value
		}
	}
	return ""
}

func logWith(logger *logrus.Logger, proxyURL string) *logrus.Entry {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return logger.WithField("proxy_url", redactProxyCredentials(proxyURL))
}

// redactProxyCredentials masks any userinfo so proxy URLs can be logged
func redactProxyCredentials(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}
	return parsed.String()
}

// IsProxyConfigured reports whether outbound requests will go through a proxy
func IsProxyConfigured() bool {
	return getProxyURL() != ""
}
