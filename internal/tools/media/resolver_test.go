package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/creator-scout/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// mockVideoResolver answers backend resolution requests, optionally blocking until released
type mockVideoResolver struct {
	link     string
	document string
	err      error
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

func (m *mockVideoResolver) ResolveVideo(ctx context.Context, logger *logrus.Logger, videoURL string) (string, error) {
	m.calls.Add(1)
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	return m.link, m.err
}

func (m *mockVideoResolver) ResolveVideoDocument(ctx context.Context, logger *logrus.Logger, videoURL string) ([]byte, error) {
	link, err := m.ResolveVideo(ctx, logger, videoURL)
	if err != nil {
		return nil, err
	}
	if m.document != "" {
		return []byte(m.document), nil
	}
	return json.Marshal(map[string]string{"url": link})
}

// roundTripFunc lets a test observe or forbid outgoing requests
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newResolver(proxyBaseURL string, client *http.Client, backend VideoResolver) *Resolver {
	return NewResolverWith(NewClassifier(config.DefaultCDNHostSuffixes), proxyBaseURL, client, backend, time.Second)
}

func stepsOf(attempts []Attempt) []Step {
	steps := make([]Step, 0, len(attempts))
	for _, a := range attempts {
		steps = append(steps, a.Step)
	}
	return steps
}

func TestResolve_DirectCDNMakesNoNetworkCall(t *testing.T) {
	var requests atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		requests.Add(1)
		return nil, errors.New("unexpected network call")
	})}
	backend := &mockVideoResolver{}

	cdnURL := "https://v16-webapp-prime.tiktokcdn.com/video/abc.mp4?expire=1"
	res, err := newResolver("http://127.0.0.1:1", client, backend).Resolve(context.Background(), testLogger(), cdnURL)
	require.NoError(t, err)

	assert.Equal(t, cdnURL, res.DownloadURL)
	assert.Nil(t, res.Stream)
	assert.Equal(t, ClassDirectCDN, res.Reference.Class)
	assert.Equal(t, []Step{StepClassify, StepDirect}, stepsOf(res.Steps))
	assert.Zero(t, requests.Load())
	assert.Zero(t, backend.calls.Load())
}

func TestResolve_ProxyStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/webm")
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer upstream.Close()

	backend := &mockVideoResolver{}
	proxy := httptest.NewServer(NewProxyHandlerWith(upstream.Client(), backend, time.Second, testLogger()))
	defer proxy.Close()

	res, err := newResolver(proxy.URL, proxy.Client(), backend).Resolve(context.Background(), testLogger(), upstream.URL+"/v/1")
	require.NoError(t, err)
	require.NotNil(t, res.Stream)
	defer func() { _ = res.Stream.Close() }()

	body, err := io.ReadAll(res.Stream)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(body))
	assert.Equal(t, "video/webm", res.ContentType)
	assert.Equal(t, DefaultFilename, res.Filename)
	assert.Equal(t, []Step{StepClassify, StepProxy}, stepsOf(res.Steps))
	assert.Zero(t, backend.calls.Load())
}

func TestResolve_BackendFallbackToCDN(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxy.Close()

	backend := &mockVideoResolver{link: "https://v19.tiktokcdn-us.com/resolved.mp4"}
	res, err := newResolver(proxy.URL, proxy.Client(), backend).Resolve(context.Background(), testLogger(), "https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)

	assert.Equal(t, "https://v19.tiktokcdn-us.com/resolved.mp4", res.DownloadURL)
	assert.Equal(t, []Step{StepClassify, StepProxy, StepBackend, StepClassify, StepDirect}, stepsOf(res.Steps))
	assert.NotEmpty(t, res.Steps[1].Error)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestResolve_ProxyUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	deadURL := server.URL
	server.Close()

	backend := &mockVideoResolver{link: "https://v16.tiktokcdn.com/a.mp4"}
	res, err := newResolver(deadURL, http.DefaultClient, backend).Resolve(context.Background(), testLogger(), "https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)
	assert.Equal(t, "https://v16.tiktokcdn.com/a.mp4", res.DownloadURL)
}

func TestResolve_Exhausted(t *testing.T) {
	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxy.Close()

	tests := []struct {
		name      string
		backend   *mockVideoResolver
		wantSteps []Step
		wantProxy int32
	}{
		{
			name:      "backend fails",
			backend:   &mockVideoResolver{err: errors.New("resolve-video: backend returned 500")},
			wantSteps: []Step{StepClassify, StepProxy, StepBackend},
			wantProxy: 1,
		},
		{
			name:      "resolved link also fails through proxy",
			backend:   &mockVideoResolver{link: "https://mirror.example.com/a.mp4"},
			wantSteps: []Step{StepClassify, StepProxy, StepBackend, StepClassify, StepProxy},
			wantProxy: 2,
		},
		{
			name:      "resolved link is not a web url",
			backend:   &mockVideoResolver{link: "7301234567"},
			wantSteps: []Step{StepClassify, StepProxy, StepBackend, StepClassify},
			wantProxy: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyHits.Store(0)
			_, err := newResolver(proxy.URL, proxy.Client(), tt.backend).Resolve(context.Background(), testLogger(), "https://www.tiktok.com/@a/video/1")
			require.Error(t, err)

			var mre *MediaResolutionError
			require.True(t, errors.As(err, &mre))
			assert.Equal(t, "https://www.tiktok.com/@a/video/1", mre.URL)
			assert.Equal(t, tt.wantSteps, stepsOf(mre.Attempts))
			assert.Equal(t, tt.wantProxy, proxyHits.Load())
			assert.Equal(t, int32(1), tt.backend.calls.Load())
		})
	}
}

func TestResolve_BackendManagedSkipsProxy(t *testing.T) {
	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
	}))
	defer proxy.Close()

	backend := &mockVideoResolver{link: "https://v16.tiktokcdn.com/a.mp4"}
	res, err := newResolver(proxy.URL, proxy.Client(), backend).Resolve(context.Background(), testLogger(), "7301234567")
	require.NoError(t, err)

	assert.Equal(t, "https://v16.tiktokcdn.com/a.mp4", res.DownloadURL)
	assert.Equal(t, []Step{StepClassify, StepBackend, StepClassify, StepDirect}, stepsOf(res.Steps))
	assert.Zero(t, proxyHits.Load())
}

func TestResolve_NoBackend(t *testing.T) {
	_, err := newResolver("", http.DefaultClient, nil).Resolve(context.Background(), testLogger(), "7301234567")
	var mre *MediaResolutionError
	require.True(t, errors.As(err, &mre))
}

func TestResolve_InProgressGuard(t *testing.T) {
	backend := &mockVideoResolver{
		link:    "https://v16.tiktokcdn.com/a.mp4",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	resolver := newResolver("", http.DefaultClient, backend)

	type outcome struct {
		res *Resolution
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := resolver.Resolve(context.Background(), testLogger(), "7301234567")
		done <- outcome{res, err}
	}()

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first resolution never reached the backend")
	}

	_, err := resolver.Resolve(context.Background(), testLogger(), "7301234567")
	assert.ErrorIs(t, err, ErrResolutionInProgress)

	// A different reference is not blocked by the pending one
	cdn, err := resolver.Resolve(context.Background(), testLogger(), "https://v16.tiktokcdn.com/other.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://v16.tiktokcdn.com/other.mp4", cdn.DownloadURL)

	close(backend.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, "https://v16.tiktokcdn.com/a.mp4", first.res.DownloadURL)

	// Once released the reference resolves normally again
	again, err := resolver.Resolve(context.Background(), testLogger(), "7301234567")
	require.NoError(t, err)
	assert.Equal(t, "https://v16.tiktokcdn.com/a.mp4", again.DownloadURL)
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestResolve_GuardReleasedAfterFailure(t *testing.T) {
	backend := &mockVideoResolver{err: errors.New("boom")}
	resolver := newResolver("", http.DefaultClient, backend)

	for range 2 {
		_, err := resolver.Resolve(context.Background(), testLogger(), "7301234567")
		var mre *MediaResolutionError
		require.True(t, errors.As(err, &mre))
	}
	assert.Equal(t, int32(2), backend.calls.Load())
}
