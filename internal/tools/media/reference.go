// Package media resolves hosted video references into downloadable links or byte streams.
package media

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Class is the resolution path a reference starts on
type Class string

const (
	// ClassDirectCDN references already point at a media CDN and download as-is
	ClassDirectCDN Class = "directCdn"
	// ClassProxyable references are web URLs fetched through the same-origin intermediary
	ClassProxyable Class = "proxyable"
	// ClassBackendManaged references are not web URLs and only the backend can resolve them
	ClassBackendManaged Class = "backendManaged"
)

// Reference is a media URL with its classification and correlation key
type Reference struct {
	URL            string    `json:"url"`
	Class          Class     `json:"class"`
	CorrelationKey uuid.UUID `json:"correlation_key"`
}

// Classifier assigns a Class using a table of CDN host suffixes
type Classifier struct {
	cdnSuffixes []string
}

// NewClassifier creates a classifier. Suffixes are matched case-insensitively on dot boundaries.
func NewClassifier(cdnSuffixes []string) *Classifier {
	suffixes := make([]string, 0, len(cdnSuffixes))
	for _, s := range cdnSuffixes {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "."))
		if s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &Classifier{cdnSuffixes: suffixes}
}

// Classify returns the reference for rawURL. It performs no I/O and is idempotent.
func (c *Classifier) Classify(rawURL string) (Reference, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("media reference is empty")
	}

	ref := Reference{URL: trimmed, Class: ClassBackendManaged}

	parsed, err := url.Parse(trimmed)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Hostname() != "" {
		// Scheme and host are case-insensitive, so the key ignores their case
		parsed.Scheme = strings.ToLower(parsed.Scheme)
		parsed.Host = strings.ToLower(parsed.Host)
		parsed.Fragment = ""
		ref.URL = parsed.String()
		ref.Class = ClassProxyable
		if c.isCDNHost(parsed.Hostname()) {
			ref.Class = ClassDirectCDN
		}
	}

	ref.CorrelationKey = uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref.URL))
	return ref, nil
}

func (c *Classifier) isCDNHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range c.cdnSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
