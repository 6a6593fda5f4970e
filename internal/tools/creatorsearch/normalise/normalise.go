// Package normalise converts the per-endpoint backend responses into the canonical creator search shapes.
package normalise

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
)

// bucket is a group of raw candidates sharing a default tier
type bucket struct {
	tier  creatorsearch.MatchTier
	items []gjson.Result
}

// Normalise maps a raw backend response to a NormalizedSearchResult holding at most maxResults candidates.
// It is pure: the same input always yields the same output.
func Normalise(raw backend.RawResponse, maxResults int) (*creatorsearch.NormalizedSearchResult, error) {
	if maxResults <= 0 {
		maxResults = creatorsearch.DefaultMaxResults
	}

	if !gjson.ValidBytes(raw.Body) {
		return nil, &creatorsearch.NormalizationError{Strategy: raw.Strategy, Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(raw.Body)

	if raw.Strategy == creatorsearch.StrategySmart {
		return normaliseSmart(raw, root)
	}

	var buckets []bucket
	switch {
	case root.IsArray() && raw.Strategy == creatorsearch.StrategyKeyword:
		// The keyword endpoint answers with a bare list; the echo comes from the envelope
		buckets = []bucket{{tier: creatorsearch.TierUnscored, items: root.Array()}}
	case root.IsObject():
		if !root.Get("query").Exists() {
			return nil, &creatorsearch.NormalizationError{Strategy: raw.Strategy, Reason: "response is missing the query echo"}
		}
		buckets = collectBuckets(root)
	default:
		return nil, &creatorsearch.NormalizationError{Strategy: raw.Strategy, Reason: "response is not an object"}
	}

	candidates := candidatesFrom(buckets)
	orderCandidates(candidates)
	candidates = dedupe(candidates)
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	effective := raw.SentQuery
	criteria := []string{}
	if root.IsObject() {
		if q := stringAt(root, resultFields.effectiveQuery); q != "" {
			effective = q
		}
		criteria = stringsAt(root, resultFields.criteria)
	}
	if effective == "" {
		effective = raw.OriginalQuery
	}

	return &creatorsearch.NormalizedSearchResult{
		OriginalQuery:    raw.OriginalQuery,
		EffectiveQuery:   effective,
		RequiredCriteria: criteria,
		Candidates:       candidates,
		StrategyUsed: creatorsearch.StrategyUsed{
			Strategy: raw.Strategy,
			Stage:    creatorsearch.StagePrimary,
		},
	}, nil
}

// collectBuckets gathers exact, partial and untiered candidate lists from an object response
func collectBuckets(root gjson.Result) []bucket {
	var buckets []bucket
	if items, ok := arrayAt(root, resultFields.exactMatches); ok {
		buckets = append(buckets, bucket{tier: creatorsearch.TierExact, items: items})
	}
	if items, ok := arrayAt(root, resultFields.partialMatches); ok {
		buckets = append(buckets, bucket{tier: creatorsearch.TierPartial, items: items})
	}
	if items, ok := arrayAt(root, resultFields.matches); ok {
		buckets = append(buckets, bucket{tier: creatorsearch.TierUnscored, items: items})
	}
	return buckets
}

// candidatesFrom builds candidates bucket by bucket, skipping items without a username
func candidatesFrom(buckets []bucket) []creatorsearch.MatchCandidate {
	candidates := []creatorsearch.MatchCandidate{}

	for _, b := range buckets {
		for _, item := range b.items {
			if !item.IsObject() {
				continue
			}
			candidate := candidateFrom(item, b.tier)
			if candidate.Username == "" {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}
	return candidates
}

// dedupe keeps the first occurrence of each username in already ordered candidates,
// so a creator listed under several tiers keeps its best one.
func dedupe(candidates []creatorsearch.MatchCandidate) []creatorsearch.MatchCandidate {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(candidates))
	kept := candidates[:0]
	for _, c := range candidates {
		key := usernameKey(fold, c.Username)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}
	return kept
}

// orderCandidates sorts by tier, then relevance descending. Unscored relevance sorts last within a tier
// and ties keep backend order.
func orderCandidates(candidates []creatorsearch.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchTier.Rank() != b.MatchTier.Rank() {
			return a.MatchTier.Rank() < b.MatchTier.Rank()
		}
		switch {
		case a.RelevanceScore == nil:
			return false
		case b.RelevanceScore == nil:
			return true
		default:
			return *a.RelevanceScore > *b.RelevanceScore
		}
	})
}

// candidateFrom maps one raw profile object to a MatchCandidate
func candidateFrom(item gjson.Result, defaultTier creatorsearch.MatchTier) creatorsearch.MatchCandidate {
	username := cleanUsername(stringAt(item, candidateFields.username))

	displayName := stringAt(item, candidateFields.displayName)
	if displayName == "" {
		displayName = username
	}

	return creatorsearch.MatchCandidate{
		Username:          username,
		DisplayName:       displayName,
		Bio:               stringAt(item, candidateFields.bio),
		FollowerCount:     countAt(item, candidateFields.followers),
		ProfilePictureRef: stringAt(item, candidateFields.picture),
		RelevanceScore:    scoreAt(item, candidateFields.score),
		MatchReason:       stringAt(item, candidateFields.reason),
		MatchTier:         tierFrom(item, defaultTier),
		Verified:          boolAt(item, candidateFields.verified),
		DiscoveryMethod:   stringAt(item, candidateFields.discovery),
		Videos:            videosFrom(item),
	}
}

// tierFrom honours an explicit tier tag only when the candidate came from an untiered list
func tierFrom(item gjson.Result, defaultTier creatorsearch.MatchTier) creatorsearch.MatchTier {
	if defaultTier != creatorsearch.TierUnscored {
		return defaultTier
	}
	switch strings.ToLower(stringAt(item, candidateFields.tier)) {
	case "exact", "exact_match":
		return creatorsearch.TierExact
	case "partial", "partial_match":
		return creatorsearch.TierPartial
	default:
		return creatorsearch.TierUnscored
	}
}

func videosFrom(item gjson.Result) []creatorsearch.VideoSummary {
	videos := []creatorsearch.VideoSummary{}
	items, ok := arrayAt(item, candidateFields.videos)
	if !ok {
		return videos
	}
	for _, v := range items {
		if !v.IsObject() {
			continue
		}
		videos = append(videos, creatorsearch.VideoSummary{
			ID:                videoID(v),
			Caption:           stringAt(v, videoFields.caption),
			ThumbnailRef:      stringAt(v, videoFields.thumbnail),
			RelevanceScore:    scoreAt(v, videoFields.score),
			ThumbnailAnalysis: textAt(v, videoFields.thumbnailAnalysis),
		})
	}
	return videos
}

// videoID accepts numeric identifiers as well as strings
func videoID(v gjson.Result) string {
	res, ok := first(v, videoFields.id)
	if !ok {
		return ""
	}
	if res.Type == gjson.Number {
		return res.Raw
	}
	return res.String()
}

// normaliseSmart maps the single-username answer of the smart endpoint
func normaliseSmart(raw backend.RawResponse, root gjson.Result) (*creatorsearch.NormalizedSearchResult, error) {
	if !root.IsObject() {
		return nil, &creatorsearch.NormalizationError{Strategy: raw.Strategy, Reason: "response is not an object"}
	}
	if !root.Get("query").Exists() {
		return nil, &creatorsearch.NormalizationError{Strategy: raw.Strategy, Reason: "response is missing the query echo"}
	}

	result := &creatorsearch.NormalizedSearchResult{
		OriginalQuery:    raw.OriginalQuery,
		EffectiveQuery:   raw.SentQuery,
		RequiredCriteria: []string{},
		Candidates:       []creatorsearch.MatchCandidate{},
		StrategyUsed: creatorsearch.StrategyUsed{
			Strategy: raw.Strategy,
			Stage:    creatorsearch.StagePrimary,
		},
	}

	username := cleanUsername(stringAt(root, resultFields.smartUsername))
	if username == "" || strings.EqualFold(username, creatorsearch.NoMatchSentinel) {
		return result, nil
	}

	result.Candidates = append(result.Candidates, creatorsearch.MatchCandidate{
		Username:       username,
		DisplayName:    username,
		RelevanceScore: scoreAt(root, resultFields.smartConfidence),
		MatchReason:    stringAt(root, resultFields.smartWhy),
		MatchTier:      creatorsearch.TierUnscored,
		Videos:         []creatorsearch.VideoSummary{},
	})
	return result, nil
}

// usernameKey is the dedupe key: case-folded, without the leading @
func usernameKey(fold cases.Caser, username string) string {
	return fold.String(cleanUsername(username))
}

// cleanUsername strips surrounding whitespace, quotes and the leading @
func cleanUsername(username string) string {
	username = strings.Trim(strings.TrimSpace(username), `"'`)
	return strings.TrimPrefix(username, "@")
}
