package unified

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/normalise"
)

// Backend is the part of the backend client the orchestrator drives
type Backend interface {
	Search(ctx context.Context, logger *logrus.Logger, strategy creatorsearch.Strategy, query creatorsearch.SearchQuery) (*backend.RawResponse, error)
	GetProfile(ctx context.Context, logger *logrus.Logger, username string) ([]byte, error)
	AnalyseContent(ctx context.Context, logger *logrus.Logger, username, query string, criteria []string) ([]byte, error)
}

// fallbackFor maps a primary strategy to the single strategy tried after it fails.
// Strategies without an entry never fall back.
var fallbackFor = map[creatorsearch.Strategy]creatorsearch.Strategy{
	creatorsearch.StrategyWebEnhanced: creatorsearch.StrategyPrecise,
	creatorsearch.StrategyEnhanced:    creatorsearch.StrategyPrecise,
}

// searchState is a step of the primary/fallback state machine
type searchState int

const (
	stateAttemptPrimary searchState = iota
	stateAttemptFallback
)

// Orchestrator chooses strategies, applies the single fallback and returns normalised results
type Orchestrator struct {
	backend Backend
}

// NewOrchestrator creates an orchestrator over a backend
func NewOrchestrator(b Backend) *Orchestrator {
	return &Orchestrator{backend: b}
}

// Search runs one creator search. An empty strategy selects the default.
func (o *Orchestrator) Search(ctx context.Context, logger *logrus.Logger, query creatorsearch.SearchQuery, strategy creatorsearch.Strategy) (*creatorsearch.NormalizedSearchResult, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if strategy == "" {
		strategy = creatorsearch.DefaultStrategy
	}

	var (
		primaryErr error
		fallback   creatorsearch.Strategy
	)

	state := stateAttemptPrimary
	for {
		switch state {
		case stateAttemptPrimary:
			result, err := o.attempt(ctx, logger, strategy, query)
			if err == nil {
				if strategy == creatorsearch.StrategySmart {
					o.enrichSmart(ctx, logger, result)
				}
				return result, nil
			}

			next, ok := fallbackFor[strategy]
			switch {
			case !ok:
				return nil, err
			case !creatorsearch.IsRecoverable(err):
				return nil, err
			case ctx.Err() != nil:
				// The caller gave up; a second attempt would only fail the same way
				return nil, err
			}

			logger.WithFields(logrus.Fields{
				"strategy": strategy,
				"fallback": next,
				"error":    err.Error(),
			}).Warn("Primary search strategy failed, falling back")

			primaryErr = err
			fallback = next
			state = stateAttemptFallback

		case stateAttemptFallback:
			result, err := o.attempt(ctx, logger, fallback, query)
			if err != nil {
				return nil, &creatorsearch.FallbackError{
					Primary:          primaryErr,
					Fallback:         err,
					PrimaryStrategy:  strategy,
					FallbackStrategy: fallback,
				}
			}
			result.StrategyUsed = creatorsearch.StrategyUsed{Strategy: fallback, Stage: creatorsearch.StageFallback}
			result.PrimaryFailure = primaryErr.Error()
			return result, nil
		}
	}
}

// attempt performs one backend round trip and normalises the response
func (o *Orchestrator) attempt(ctx context.Context, logger *logrus.Logger, strategy creatorsearch.Strategy, query creatorsearch.SearchQuery) (*creatorsearch.NormalizedSearchResult, error) {
	raw, err := o.backend.Search(ctx, logger, strategy, query)
	if err != nil {
		return nil, err
	}

	result, err := normalise.Normalise(*raw, query.EffectiveMaxResults())
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"strategy":   strategy,
		"candidates": len(result.Candidates),
	}).Debug("Search strategy returned")
	return result, nil
}

// enrichSmart replaces a confident smart-search candidate with its merged full profile.
// A failed profile lookup keeps the thin candidate.
func (o *Orchestrator) enrichSmart(ctx context.Context, logger *logrus.Logger, result *creatorsearch.NormalizedSearchResult) {
	if len(result.Candidates) != 1 {
		return
	}
	thin := result.Candidates[0]
	if thin.RelevanceScore == nil || *thin.RelevanceScore < creatorsearch.ProfileConfidenceThreshold {
		return
	}

	profile, err := o.Profile(ctx, logger, thin.Username)
	if err != nil {
		logger.WithError(err).WithField("username", thin.Username).Warn("Failed to fetch profile for smart search match")
		return
	}
	result.Candidates[0] = normalise.MergeProfile(thin, profile)
}

// Profile fetches one full profile
func (o *Orchestrator) Profile(ctx context.Context, logger *logrus.Logger, username string) (*creatorsearch.MatchCandidate, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	body, err := o.backend.GetProfile(ctx, logger, username)
	if err != nil {
		return nil, err
	}
	return normalise.Profile(username, body)
}

// Analyse requests a content analysis. A limited analysis is returned as a degraded result, an error status is an AnalysisError.
func (o *Orchestrator) Analyse(ctx context.Context, logger *logrus.Logger, username, query string, criteria []string) (*creatorsearch.ContentAnalysis, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	body, err := o.backend.AnalyseContent(ctx, logger, username, query, criteria)
	if err != nil {
		return nil, err
	}

	analysis, err := normalise.Analysis(username, body)
	if err != nil {
		return nil, err
	}

	switch analysis.Status {
	case creatorsearch.AnalysisFailed:
		return nil, &creatorsearch.AnalysisError{Username: username, Message: analysis.Message}
	case creatorsearch.AnalysisLimited:
		logger.WithFields(logrus.Fields{
			"username": username,
			"message":  analysis.Message,
		}).Warn("Content analysis ran in limited mode")
	}
	return analysis, nil
}
