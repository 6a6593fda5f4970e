package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/config"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
	"github.com/sammcj/creator-scout/internal/utils/httpclient"
)

const (
	// DefaultFilename is the attachment name used when the intermediary supplies none
	DefaultFilename = "creator-video.mp4"
	// DefaultContentType is assumed when upstream omits a content type
	DefaultContentType = "video/mp4"
)

// Step names a state of the resolution chain
type Step string

const (
	StepClassify Step = "classify"
	StepDirect   Step = "direct"
	StepProxy    Step = "proxy"
	StepBackend  Step = "backend"
	StepResolved Step = "resolved"
	StepFailed   Step = "failed"
)

// Attempt records one step taken while resolving
type Attempt struct {
	Step  Step   `json:"step"`
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Resolution is a resolved reference: either a DownloadURL or an open Stream.
// A non-nil Stream must be closed by the caller.
type Resolution struct {
	Reference   Reference     `json:"reference"`
	DownloadURL string        `json:"download_url,omitempty"`
	Stream      io.ReadCloser `json:"-"`
	ContentType string        `json:"content_type,omitempty"`
	Filename    string        `json:"filename,omitempty"`
	Steps       []Attempt     `json:"steps"`
}

// VideoResolver asks the backend for a playable link. The Resolver needs the link alone;
// the intermediary forwards the whole resolution document.
type VideoResolver interface {
	ResolveVideo(ctx context.Context, logger *logrus.Logger, videoURL string) (string, error)
	ResolveVideoDocument(ctx context.Context, logger *logrus.Logger, videoURL string) ([]byte, error)
}

// Resolver runs the ordered chain: direct CDN link, same-origin intermediary, backend resolution.
type Resolver struct {
	classifier      *Classifier
	proxyBaseURL    string
	httpClient      *http.Client
	backend         VideoResolver
	downloadTimeout time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewResolver creates a resolver from configuration
func NewResolver(cfg *config.Config, logger *logrus.Logger) *Resolver {
	return NewResolverWith(
		NewClassifier(cfg.CDNHostSuffixes),
		cfg.ProxyBaseURL,
		httpclient.New(0, logger),
		backend.NewClient(cfg, logger),
		cfg.Timeouts.Download,
	)
}

// NewResolverWith creates a resolver from explicit parts
func NewResolverWith(classifier *Classifier, proxyBaseURL string, httpClient *http.Client, videoResolver VideoResolver, downloadTimeout time.Duration) *Resolver {
	return &Resolver{
		classifier:      classifier,
		proxyBaseURL:    strings.TrimSuffix(proxyBaseURL, "/"),
		httpClient:      httpClient,
		backend:         videoResolver,
		downloadTimeout: downloadTimeout,
		inFlight:        make(map[string]struct{}),
	}
}

// Classify exposes the resolver's classification of rawURL
func (r *Resolver) Classify(rawURL string) (Reference, error) {
	return r.classifier.Classify(rawURL)
}

// Resolve turns rawURL into a downloadable link or stream.
// A second call for the same reference while one is pending fails with ErrResolutionInProgress.
func (r *Resolver) Resolve(ctx context.Context, logger *logrus.Logger, rawURL string) (*Resolution, error) {
	ref, err := r.classifier.Classify(rawURL)
	if err != nil {
		return nil, err
	}

	key := ref.CorrelationKey.String()
	if !r.acquire(key) {
		return nil, ErrResolutionInProgress
	}
	defer r.release(key)

	res := &Resolution{Reference: ref}
	current := ref
	backendTried := false
	state := StepClassify

	for {
		switch state {
		case StepClassify:
			res.Steps = append(res.Steps, Attempt{Step: StepClassify, URL: current.URL})
			switch current.Class {
			case ClassDirectCDN:
				state = StepDirect
			case ClassProxyable:
				state = StepProxy
			default:
				if backendTried {
					res.Steps[len(res.Steps)-1].Error = "backend returned a link that is not a web URL"
					state = StepFailed
				} else {
					state = StepBackend
				}
			}

		case StepDirect:
			res.Steps = append(res.Steps, Attempt{Step: StepDirect, URL: current.URL})
			res.DownloadURL = current.URL
			state = StepResolved

		case StepProxy:
			err := r.viaProxy(ctx, current.URL, res)
			res.Steps = append(res.Steps, attempt(StepProxy, current.URL, err))
			switch {
			case err == nil:
				state = StepResolved
			case backendTried:
				logger.WithError(err).WithField("url", current.URL).Warn("Download intermediary failed for resolved link")
				state = StepFailed
			default:
				logger.WithError(err).WithField("url", current.URL).Warn("Download intermediary failed, asking backend")
				state = StepBackend
			}

		case StepBackend:
			backendTried = true
			if r.backend == nil {
				res.Steps = append(res.Steps, Attempt{Step: StepBackend, URL: ref.URL, Error: "no backend configured"})
				state = StepFailed
				continue
			}
			link, err := r.backend.ResolveVideo(ctx, logger, ref.URL)
			res.Steps = append(res.Steps, attempt(StepBackend, ref.URL, err))
			if err != nil {
				logger.WithError(err).WithField("url", ref.URL).Warn("Backend media resolution failed")
				state = StepFailed
				continue
			}
			next, err := r.classifier.Classify(link)
			if err != nil {
				res.Steps[len(res.Steps)-1].Error = err.Error()
				state = StepFailed
				continue
			}
			current = next
			state = StepClassify

		case StepResolved:
			logger.WithFields(logrus.Fields{
				"url":   ref.URL,
				"class": ref.Class,
				"steps": len(res.Steps),
			}).Debug("Media reference resolved")
			return res, nil

		case StepFailed:
			return nil, &MediaResolutionError{URL: ref.URL, Attempts: res.Steps}
		}
	}
}

func attempt(step Step, u string, err error) Attempt {
	a := Attempt{Step: step, URL: u}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// viaProxy asks the same-origin intermediary to stream the media
func (r *Resolver) viaProxy(ctx context.Context, mediaURL string, res *Resolution) error {
	if r.proxyBaseURL == "" {
		return fmt.Errorf("no download intermediary configured")
	}

	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if r.downloadTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, r.downloadTimeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, r.ProxyLink(mediaURL), nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		cancel()
		return err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return fmt.Errorf("intermediary returned %d", resp.StatusCode)
	}

	res.Stream = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	res.ContentType = resp.Header.Get("Content-Type")
	if res.ContentType == "" {
		res.ContentType = DefaultContentType
	}
	res.Filename = filenameFrom(resp.Header.Get("Content-Disposition"))
	return nil
}

// ProxyLink returns the intermediary URL that streams mediaURL
func (r *Resolver) ProxyLink(mediaURL string) string {
	return fmt.Sprintf("%s%s?url=%s&proxy=true", r.proxyBaseURL, DownloadPath, url.QueryEscape(mediaURL))
}

// filenameFrom extracts the attachment filename, falling back to DefaultFilename
func filenameFrom(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return DefaultFilename
}

// cancelOnClose releases the request context once the stream is closed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (r *Resolver) acquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[key]; busy {
		return false
	}
	r.inFlight[key] = struct{}{}
	return true
}

func (r *Resolver) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}
