package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/creator-scout/internal/config"
)

func TestClassify(t *testing.T) {
	classifier := NewClassifier(config.DefaultCDNHostSuffixes)

	tests := []struct {
		name string
		url  string
		want Class
	}{
		{name: "cdn host", url: "https://v16-webapp-prime.tiktokcdn.com/video/abc.mp4", want: ClassDirectCDN},
		{name: "regional cdn host", url: "https://v19.tiktokcdn-us.com/abc/video.mp4?expire=1", want: ClassDirectCDN},
		{name: "cdn host upper case", url: "HTTPS://V16.TIKTOKCDN.COM/a.mp4", want: ClassDirectCDN},
		{name: "bare cdn apex", url: "https://tiktokcdn.com/a.mp4", want: ClassDirectCDN},
		{name: "page url", url: "https://www.tiktok.com/@techzulu/video/7301234567", want: ClassProxyable},
		{name: "lookalike host", url: "https://nottiktokcdn.com/a.mp4", want: ClassProxyable},
		{name: "cdn name in path", url: "https://example.com/tiktokcdn.com/a.mp4", want: ClassProxyable},
		{name: "video id", url: "7301234567", want: ClassBackendManaged},
		{name: "non web scheme", url: "ftp://files.example.com/a.mp4", want: ClassBackendManaged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := classifier.Classify(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.Class)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	classifier := NewClassifier(config.DefaultCDNHostSuffixes)

	for _, u := range []string{
		"https://v16.tiktokcdn.com/a.mp4",
		"https://www.tiktok.com/@a/video/1#comments",
		"7301234567",
	} {
		first, err := classifier.Classify(u)
		require.NoError(t, err)
		second, err := classifier.Classify(u)
		require.NoError(t, err)
		again, err := classifier.Classify(first.URL)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, first, again)
	}
}

func TestClassify_CorrelationKey(t *testing.T) {
	classifier := NewClassifier(nil)

	a, err := classifier.Classify("https://WWW.TikTok.com/@a/video/1")
	require.NoError(t, err)
	b, err := classifier.Classify("https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)
	c, err := classifier.Classify("https://www.tiktok.com/@a/video/2")
	require.NoError(t, err)

	assert.Equal(t, a.CorrelationKey, b.CorrelationKey)
	assert.NotEqual(t, a.CorrelationKey, c.CorrelationKey)
	assert.Equal(t, ClassProxyable, a.Class)
}

func TestClassify_Empty(t *testing.T) {
	_, err := NewClassifier(nil).Classify("   ")
	assert.Error(t, err)
}

func TestNewClassifier_NormalisesSuffixes(t *testing.T) {
	classifier := NewClassifier([]string{" .Example-CDN.net ", ""})
	ref, err := classifier.Classify("https://edge.example-cdn.net/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, ClassDirectCDN, ref.Class)
}
