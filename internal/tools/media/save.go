package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// lockRetryDelay is how often SaveToFile retries a contended lock
const lockRetryDelay = 100 * time.Millisecond

// SaveToFile writes a resolution to dest and returns the number of bytes written.
// A stream is copied as-is; a download link is fetched with client. The write happens under
// an exclusive lock on dest+".lock" and lands via rename, so readers never see a partial file.
func SaveToFile(ctx context.Context, logger *logrus.Logger, client *http.Client, res *Resolution, dest string) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("nothing to save")
	}

	body, err := openBody(ctx, client, res)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close media body")
		}
	}()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	fileLock := flock.New(dest + ".lock")
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire lock on %s: %w", dest, err)
	}
	if !locked {
		return 0, fmt.Errorf("could not acquire lock on %s", dest)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logger.WithError(err).Warn("Failed to release download lock")
		}
	}()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if copyErr != nil {
			return 0, fmt.Errorf("failed to write media: %w", copyErr)
		}
		return 0, fmt.Errorf("failed to finalise media file: %w", closeErr)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("failed to move media into place: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"path":  dest,
		"bytes": written,
	}).Info("Media saved")
	return written, nil
}

// openBody returns the bytes behind a resolution, taking ownership of any stream
func openBody(ctx context.Context, client *http.Client, res *Resolution) (io.ReadCloser, error) {
	if res.Stream != nil {
		body := res.Stream
		res.Stream = nil
		return body, nil
	}
	if res.DownloadURL == "" {
		return nil, fmt.Errorf("resolution has neither a stream nor a download url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.DownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}
