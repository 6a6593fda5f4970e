package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
)

// LogToolErrorsEnvVar turns the failure journal on when set to "true"
const LogToolErrorsEnvVar = "LOG_TOOL_ERRORS"

// DefaultLogRetentionDays is the number of days journal entries are kept
const DefaultLogRetentionDays = 60

// Failure kinds recorded in the journal
const (
	KindTransport     = "transport"
	KindNormalisation = "normalisation"
	KindFallback      = "fallback_exhausted"
	KindAnalysis      = "analysis"
	KindCancelled     = "cancelled"
	KindOther         = "other"
)

// ToolErrorLogEntry is one line of the failure journal
type ToolErrorLogEntry struct {
	Timestamp  string         `json:"timestamp"`
	ToolName   string         `json:"tool_name"`
	Kind       string         `json:"kind"`
	Endpoint   string         `json:"endpoint,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Error      string         `json:"error"`
	Transport  string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to one JSON lines segment per UTC day
type ToolErrorLogger struct {
	dir    string
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	segment string
	file    *os.File
}

var (
	globalJournal     *ToolErrorLogger
	globalJournalOnce sync.Once
)

// InitGlobalErrorLogger opens the journal under ~/.creator-scout/logs when LOG_TOOL_ERRORS=true
// and prunes segments past DefaultLogRetentionDays in the background.
func InitGlobalErrorLogger(logger *logrus.Logger) error {
	var initErr error
	globalJournalOnce.Do(func() {
		if os.Getenv(LogToolErrorsEnvVar) != "true" {
			return
		}

		home, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("locating home directory: %w", err)
			return
		}

		journal, err := NewToolErrorLogger(filepath.Join(home, ".creator-scout", "logs"), logger)
		if err != nil {
			initErr = err
			return
		}
		globalJournal = journal

		go func() {
			if n, err := journal.Prune(DefaultLogRetentionDays); err != nil {
				logger.WithError(err).Warn("Pruning tool error journal")
			} else if n > 0 {
				logger.WithField("removed", n).Debug("Pruned tool error journal")
			}
		}()

		logger.WithField("dir", journal.dir).Info("Tool error journal enabled")
	})

	return initErr
}

// NewToolErrorLogger creates dir if needed; segments are opened lazily on first write
func NewToolErrorLogger(dir string, logger *logrus.Logger) (*ToolErrorLogger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &ToolErrorLogger{dir: dir, logger: logger, now: time.Now}, nil
}

// GetGlobalErrorLogger returns the process journal. A nil journal discards everything.
func GetGlobalErrorLogger() *ToolErrorLogger {
	return globalJournal
}

// ClassifyError maps a tool failure onto a journal kind plus endpoint details when known
func ClassifyError(err error) (kind, endpoint string, status int) {
	var (
		fe   *creatorsearch.FallbackError
		te   *creatorsearch.TransportError
		ne   *creatorsearch.NormalizationError
		ae   *creatorsearch.AnalysisError
		kerr interface{ ErrorKind() string }
	)

	// FallbackError wraps transport errors, so it is matched first
	switch {
	case errors.As(err, &fe):
		return KindFallback, "", 0
	case errors.As(err, &te):
		return KindTransport, te.Endpoint, te.StatusCode
	case errors.As(err, &ne):
		return KindNormalisation, "", 0
	case errors.As(err, &ae):
		return KindAnalysis, "", 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled, "", 0
	case errors.As(err, &kerr):
		return kerr.ErrorKind(), "", 0
	default:
		return KindOther, "", 0
	}
}

// LogToolError records a failed tool call. Nil errors are ignored.
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, err error, transport string) {
	if l == nil || err == nil {
		return
	}

	now := l.now().UTC()
	kind, endpoint, status := ClassifyError(err)
	line, marshalErr := json.Marshal(ToolErrorLogEntry{
		Timestamp:  now.Format(time.RFC3339),
		ToolName:   toolName,
		Kind:       kind,
		Endpoint:   endpoint,
		StatusCode: status,
		Arguments:  args,
		Error:      err.Error(),
		Transport:  transport,
	})
	if marshalErr != nil {
		l.warn(marshalErr, "Encoding tool error journal entry")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, openErr := l.segmentFileLocked(now)
	if openErr != nil {
		l.warn(openErr, "Opening tool error journal segment")
		return
	}
	if _, writeErr := file.Write(append(line, '\n')); writeErr != nil {
		l.warn(writeErr, "Writing tool error journal entry")
	}
}

// segmentFileLocked returns the open segment for now's day, switching files at midnight UTC
func (l *ToolErrorLogger) segmentFileLocked(now time.Time) (*os.File, error) {
	name := segmentName(now)
	if l.file != nil && l.segment == name {
		return l.file, nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	file, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	l.file, l.segment = file, name
	return file, nil
}

func (l *ToolErrorLogger) warn(err error, msg string) {
	if l.logger != nil {
		l.logger.WithError(err).Warn(msg)
	}
}

// Close closes the current segment
func (l *ToolErrorLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.segment = nil, ""
	return err
}

// IsEnabled reports whether entries are being written
func (l *ToolErrorLogger) IsEnabled() bool {
	return l != nil
}

// Dir is the directory holding the journal segments
func (l *ToolErrorLogger) Dir() string {
	if l == nil {
		return ""
	}
	return l.dir
}

// Prune deletes segments dated more than retentionDays before today and reports how many went.
// Files that do not look like segments are left alone.
func (l *ToolErrorLogger) Prune(retentionDays int) (int, error) {
	if l == nil {
		return 0, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("listing journal directory: %w", err)
	}

	cutoff := l.now().UTC().AddDate(0, 0, -retentionDays).Format(time.DateOnly)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, entry := range entries {
		day, ok := segmentDay(entry.Name())
		if !ok || entry.IsDir() || day >= cutoff || entry.Name() == l.segment {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

const (
	segmentPrefix = "tool-errors-"
	segmentSuffix = ".jsonl"
)

func segmentName(t time.Time) string {
	return segmentPrefix + t.Format(time.DateOnly) + segmentSuffix
}

// segmentDay extracts the YYYY-MM-DD part of a segment file name
func segmentDay(name string) (string, bool) {
	day, ok := strings.CutPrefix(name, segmentPrefix)
	if !ok {
		return "", false
	}
	day, ok = strings.CutSuffix(day, segmentSuffix)
	if !ok {
		return "", false
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return "", false
	}
	return day, true
}
