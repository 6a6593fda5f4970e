package creatorsearch

import (
	"fmt"
	"slices"
)

// Strategy identifies one backend search endpoint
type Strategy string

const (
	// StrategySmart resolves free text to a single username
	StrategySmart Strategy = "smart"
	// StrategyKeyword is the plain keyword user search
	StrategyKeyword Strategy = "keyword"
	// StrategyEnhanced is the AI-ranked search with per-video commentary
	StrategyEnhanced Strategy = "enhanced"
	// StrategyPrecise is the criteria-matched search with exact/partial tiers
	StrategyPrecise Strategy = "precise"
	// StrategyWebEnhanced is the search augmented with external web evidence
	StrategyWebEnhanced Strategy = "web-enhanced"
)

// DefaultStrategy is used when the caller expresses no preference
const DefaultStrategy = StrategyWebEnhanced

// AllStrategies lists every strategy in a stable order
var AllStrategies = []Strategy{
	StrategyWebEnhanced,
	StrategyEnhanced,
	StrategyPrecise,
	StrategyKeyword,
	StrategySmart,
}

// ParseStrategy converts a user supplied name to a Strategy. An empty name yields the default.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return DefaultStrategy, nil
	}
	s := Strategy(name)
	if !slices.Contains(AllStrategies, s) {
		return "", fmt.Errorf("unknown search strategy %q (expected one of %v)", name, AllStrategies)
	}
	return s, nil
}

// MatchTier classifies how well a candidate satisfies the stated criteria
type MatchTier string

const (
	TierExact    MatchTier = "exact"
	TierPartial  MatchTier = "partial"
	TierUnscored MatchTier = "unscored"
)

// Rank orders tiers: exact before partial before unscored
func (t MatchTier) Rank() int {
	switch t {
	case TierExact:
		return 0
	case TierPartial:
		return 1
	default:
		return 2
	}
}

// Stage records whether a result came from the primary or the fallback attempt
type Stage string

const (
	StagePrimary  Stage = "primary"
	StageFallback Stage = "fallback"
)

const (
	// DefaultMaxResults is applied when a query carries no cap
	DefaultMaxResults = 5
	// MaxResultsCeiling bounds caller supplied caps
	MaxResultsCeiling = 50
	// ProfileConfidenceThreshold is the smart search confidence at which a full profile is fetched
	ProfileConfidenceThreshold = 0.5
)

// Criteria holds optional numeric filters understood by the keyword endpoint
type Criteria struct {
	MinFollowers *int  `json:"min_followers,omitempty"`
	MaxFollowers *int  `json:"max_followers,omitempty"`
	MinFollowing *int  `json:"min_following,omitempty"`
	MaxFollowing *int  `json:"max_following,omitempty"`
	MinLikes     *int  `json:"min_likes,omitempty"`
	MaxLikes     *int  `json:"max_likes,omitempty"`
	Verified     *bool `json:"verified,omitempty"`
}

// SearchQuery is one caller intent. It is treated as immutable once issued.
type SearchQuery struct {
	Text              string    `json:"query"`
	MaxResults        int       `json:"max_results,omitempty"`
	MinRelevanceScore float64   `json:"min_relevance_score,omitempty"`
	Criteria          *Criteria `json:"criteria,omitempty"`
	DeepAnalysis      bool      `json:"deep_analysis,omitempty"`
}

// EffectiveMaxResults returns the cap to apply, substituting the default for unset values
func (q SearchQuery) EffectiveMaxResults() int {
	switch {
	case q.MaxResults <= 0:
		return DefaultMaxResults
	case q.MaxResults > MaxResultsCeiling:
		return MaxResultsCeiling
	default:
		return q.MaxResults
	}
}

// VideoSummary is the canonical per-video shape
type VideoSummary struct {
	ID                string   `json:"id,omitempty"`
	Caption           string   `json:"caption"`
	ThumbnailRef      string   `json:"thumbnail"`
	RelevanceScore    *float64 `json:"relevance_score,omitempty"`
	ThumbnailAnalysis *string  `json:"thumbnail_analysis,omitempty"`
}

// MatchCandidate is the canonical profile shape every strategy is normalised into
type MatchCandidate struct {
	Username          string         `json:"username"`
	DisplayName       string         `json:"display_name"`
	Bio               string         `json:"bio"`
	FollowerCount     int64          `json:"follower_count"`
	ProfilePictureRef string         `json:"profile_picture"`
	RelevanceScore    *float64       `json:"relevance_score,omitempty"`
	MatchReason       string         `json:"match_reason"`
	MatchTier         MatchTier      `json:"match_tier"`
	Verified          bool           `json:"verified,omitempty"`
	DiscoveryMethod   string         `json:"discovery_method,omitempty"`
	Videos            []VideoSummary `json:"videos"`
}

// StrategyUsed records which backend path produced a result
type StrategyUsed struct {
	Strategy Strategy `json:"strategy"`
	Stage    Stage    `json:"stage"`
}

// NormalizedSearchResult is the canonical result handed back to callers
type NormalizedSearchResult struct {
	OriginalQuery    string           `json:"original_query"`
	EffectiveQuery   string           `json:"effective_query"`
	RequiredCriteria []string         `json:"required_criteria"`
	Candidates       []MatchCandidate `json:"candidates"`
	StrategyUsed     StrategyUsed     `json:"strategy_used"`
	PrimaryFailure   string           `json:"primary_failure,omitempty"`
}

// AnalysisStatus is the status reported by the content analysis endpoint
type AnalysisStatus string

const (
	AnalysisSuccess AnalysisStatus = "success"
	AnalysisLimited AnalysisStatus = "limited"
	AnalysisFailed  AnalysisStatus = "error"
)

// ContentAnalysis is the deep relevance assessment of one profile
type ContentAnalysis struct {
	Username          string         `json:"username"`
	Status            AnalysisStatus `json:"status"`
	RelevanceScore    *float64       `json:"relevance_score,omitempty"`
	Explanation       string         `json:"explanation"`
	ThumbnailAnalysis []string       `json:"thumbnail_analysis,omitempty"`
	Message           string         `json:"message,omitempty"`
}

// Degraded reports whether the analysis ran on the lower-fidelity path after an upstream quota was exhausted
func (a *ContentAnalysis) Degraded() bool {
	return a != nil && a.Status == AnalysisLimited
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
