package normalise

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
	"github.com/sammcj/creator-scout/internal/tools/creatorsearch/backend"
)

func raw(strategy creatorsearch.Strategy, body string) backend.RawResponse {
	return backend.RawResponse{
		Strategy:      strategy,
		OriginalQuery: "a tech influencer from south africa",
		SentQuery:     "a tech influencer from south africa",
		Body:          []byte(body),
	}
}

func usernames(result *creatorsearch.NormalizedSearchResult) []string {
	names := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		names = append(names, c.Username)
	}
	return names
}

func TestNormalise_ExactTaggedCandidatesKeepOrder(t *testing.T) {
	body := `{
		"query": "a tech influencer from south africa",
		"matches": [
			{"username": "techzulu", "relevance_score": 0.95, "match_tier": "exact", "why_matches": "South African tech reviewer"},
			{"username": "capetowncodes", "relevance_score": 0.87, "match_tier": "exact"}
		]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, body), 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"techzulu", "capetowncodes"}, usernames(result))
	assert.Equal(t, creatorsearch.StagePrimary, result.StrategyUsed.Stage)
	assert.Equal(t, creatorsearch.StrategyWebEnhanced, result.StrategyUsed.Strategy)
	assert.Equal(t, "South African tech reviewer", result.Candidates[0].MatchReason)
	for _, c := range result.Candidates {
		assert.Equal(t, creatorsearch.TierExact, c.MatchTier)
	}
}

func TestNormalise_CapPreservesExactTier(t *testing.T) {
	body := `{
		"query": "fitness coach in berlin with over 10k followers",
		"required_criteria": ["fitness coach", "berlin", ">10k followers"],
		"exact_matches": [
			{"username": "berlinlifts", "follower_count": 25000, "relevance_score": 0.7}
		],
		"partial_matches": [
			{"username": "p1", "relevance_score": 0.99},
			{"username": "p2", "relevance_score": 0.98},
			{"username": "p3", "relevance_score": 0.97},
			{"username": "p4", "relevance_score": 0.96}
		]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyPrecise, body), 3)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "berlinlifts", result.Candidates[0].Username)
	assert.Equal(t, creatorsearch.TierExact, result.Candidates[0].MatchTier)
	assert.Equal(t, []string{"p1", "p2"}, usernames(result)[1:])
	assert.Equal(t, creatorsearch.TierPartial, result.Candidates[1].MatchTier)
	assert.Equal(t, []string{"fitness coach", "berlin", ">10k followers"}, result.RequiredCriteria)
}

func TestNormalise_CapNeverExceeded(t *testing.T) {
	var items []string
	for i := range 20 {
		items = append(items, fmt.Sprintf(`{"username":"user%d","relevance_score":%d}`, i, i%3))
	}
	body := fmt.Sprintf(`{"query":"q","matches":[%s]}`, strings.Join(items, ","))

	for _, limit := range []int{1, 3, 7, 20, 50} {
		result, err := Normalise(raw(creatorsearch.StrategyEnhanced, body), limit)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(result.Candidates), limit)
	}
}

func TestNormalise_ClampsScores(t *testing.T) {
	body := `{
		"query": "q",
		"matches": [
			{"username": "high", "relevance_score": 87},
			{"username": "low", "relevance_score": -3.5},
			{"username": "stringy", "relevance_score": "0.42"},
			{"username": "missing"},
			{"username": "nulled", "relevance_score": null}
		]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyEnhanced, body), 10)
	require.NoError(t, err)

	scores := map[string]*float64{}
	for _, c := range result.Candidates {
		scores[c.Username] = c.RelevanceScore
		if c.RelevanceScore != nil {
			assert.GreaterOrEqual(t, *c.RelevanceScore, 0.0)
			assert.LessOrEqual(t, *c.RelevanceScore, 1.0)
		}
	}

	require.NotNil(t, scores["high"])
	assert.Equal(t, 1.0, *scores["high"])
	require.NotNil(t, scores["low"])
	assert.Equal(t, 0.0, *scores["low"])
	require.NotNil(t, scores["stringy"])
	assert.InDelta(t, 0.42, *scores["stringy"], 1e-9)
	assert.Nil(t, scores["missing"])
	assert.Nil(t, scores["nulled"])
}

func TestNormalise_Dedupe(t *testing.T) {
	body := `{
		"query": "q",
		"exact_matches": [{"username": "CreatorOne"}],
		"partial_matches": [{"username": "@creatorone"}, {"username": "creatortwo"}],
		"matches": [{"unique_id": "CREATORTWO"}, {"uniqueId": "creatorthree"}]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyPrecise, body), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"CreatorOne", "creatortwo", "creatorthree"}, usernames(result))
	assert.Equal(t, creatorsearch.TierExact, result.Candidates[0].MatchTier)
	assert.Equal(t, creatorsearch.TierPartial, result.Candidates[1].MatchTier)
	assert.Equal(t, creatorsearch.TierUnscored, result.Candidates[2].MatchTier)
}

func TestNormalise_DedupeKeepsBestTier(t *testing.T) {
	body := `{
		"query": "q",
		"matches": [
			{"username": "a", "match_tier": "partial", "relevance_score": 0.9},
			{"username": "b"},
			{"username": "A", "match_tier": "exact", "relevance_score": 0.4}
		]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, body), 10)
	require.NoError(t, err)

	require.Equal(t, []string{"A", "b"}, usernames(result))
	assert.Equal(t, creatorsearch.TierExact, result.Candidates[0].MatchTier)
	assert.Equal(t, 0.4, *result.Candidates[0].RelevanceScore)
}

func TestNormalise_Deterministic(t *testing.T) {
	body := `{
		"query": "q",
		"matches": [
			{"username": "a", "relevance_score": 0.5},
			{"username": "b", "relevance_score": 0.5},
			{"username": "c"},
			{"username": "d", "relevance_score": 0.9, "match_type": "partial"}
		]
	}`

	first, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, body), 10)
	require.NoError(t, err)
	second, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, body), 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"d", "a", "b", "c"}, usernames(first))
}

func TestNormalise_FieldSynonyms(t *testing.T) {
	body := `{
		"query": "q",
		"effective_query": "tech reviewers south africa",
		"matches": [{
			"uniqueId": "techzulu",
			"nickname": "Tech Zulu",
			"signature": "Gadgets from Joburg",
			"stats": {"followerCount": 120500},
			"avatar_larger": {"url_list": ["https://p16.tiktokcdn.com/avatar.jpg"]},
			"verified": true,
			"discovery_method": "web",
			"videos": [
				{"aweme_id": 7301, "desc": "Unboxing", "cover": "https://p16.tiktokcdn.com/c1.jpg", "relevance_score": 0.8},
				{"id": "v2", "caption": "Review", "thumbnail_url": "https://example.com/t2.jpg", "thumbnail_analysis": {"objects": ["phone"]}}
			]
		}]
	}`

	result, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, body), 5)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	c := result.Candidates[0]
	assert.Equal(t, "tech reviewers south africa", result.EffectiveQuery)
	assert.Equal(t, "techzulu", c.Username)
	assert.Equal(t, "Tech Zulu", c.DisplayName)
	assert.Equal(t, "Gadgets from Joburg", c.Bio)
	assert.Equal(t, int64(120500), c.FollowerCount)
	assert.Equal(t, "https://p16.tiktokcdn.com/avatar.jpg", c.ProfilePictureRef)
	assert.True(t, c.Verified)
	assert.Equal(t, "web", c.DiscoveryMethod)

	require.Len(t, c.Videos, 2)
	assert.Equal(t, "7301", c.Videos[0].ID)
	assert.Equal(t, "Unboxing", c.Videos[0].Caption)
	assert.Equal(t, "https://p16.tiktokcdn.com/c1.jpg", c.Videos[0].ThumbnailRef)
	require.NotNil(t, c.Videos[0].RelevanceScore)
	assert.Nil(t, c.Videos[0].ThumbnailAnalysis)

	assert.Equal(t, "Review", c.Videos[1].Caption)
	assert.Equal(t, "https://example.com/t2.jpg", c.Videos[1].ThumbnailRef)
	require.NotNil(t, c.Videos[1].ThumbnailAnalysis)
	assert.Equal(t, `{"objects": ["phone"]}`, *c.Videos[1].ThumbnailAnalysis)
}

func TestNormalise_FollowerCountPriority(t *testing.T) {
	body := `{"query":"q","matches":[{"username":"a","followerCount":10,"stats":{"follower_count":20},"user":{"follower_count":30}}]}`

	result, err := Normalise(raw(creatorsearch.StrategyEnhanced, body), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Candidates[0].FollowerCount)
}

func TestNormalise_KeywordArray(t *testing.T) {
	body := `[
		{"unique_id": "cook1", "nickname": "Cook One", "follower_count": 500, "analysis_result": {"score": 0.6, "explanation": "Cooks daily"}},
		{"unique_id": "cook2"}
	]`

	result, err := Normalise(raw(creatorsearch.StrategyKeyword, body), 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"cook1", "cook2"}, usernames(result))
	assert.Equal(t, "a tech influencer from south africa", result.EffectiveQuery)
	assert.Equal(t, "Cooks daily", result.Candidates[0].MatchReason)
	require.NotNil(t, result.Candidates[0].RelevanceScore)
	assert.Equal(t, 0.6, *result.Candidates[0].RelevanceScore)
	assert.Equal(t, "cook2", result.Candidates[1].DisplayName)
	assert.NotNil(t, result.Candidates[1].Videos)
	assert.Empty(t, result.RequiredCriteria)
}

func TestNormalise_StructurallyUnusable(t *testing.T) {
	tests := []struct {
		name     string
		strategy creatorsearch.Strategy
		body     string
	}{
		{name: "not json", strategy: creatorsearch.StrategyWebEnhanced, body: "<html>"},
		{name: "array for ranked", strategy: creatorsearch.StrategyEnhanced, body: `[]`},
		{name: "missing query echo", strategy: creatorsearch.StrategyPrecise, body: `{"exact_matches":[]}`},
		{name: "scalar", strategy: creatorsearch.StrategyKeyword, body: `"oops"`},
		{name: "smart without echo", strategy: creatorsearch.StrategySmart, body: `{"username":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalise(raw(tt.strategy, tt.body), 5)
			require.Error(t, err)

			var ne *creatorsearch.NormalizationError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, tt.strategy, ne.Strategy)
			assert.True(t, creatorsearch.IsRecoverable(err))
		})
	}
}

func TestNormalise_EmptyMatchesIsValid(t *testing.T) {
	result, err := Normalise(raw(creatorsearch.StrategyWebEnhanced, `{"query":"q","matches":[]}`), 5)
	require.NoError(t, err)
	assert.NotNil(t, result.Candidates)
	assert.Empty(t, result.Candidates)
}

func TestNormalise_Smart(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantUser  string
		wantScore *float64
	}{
		{name: "match", body: `{"query":"q","username":"@techzulu","confidence":0.82,"explanation":"Bio mentions Johannesburg"}`, wantUser: "techzulu", wantScore: creatorsearch.Float(0.82)},
		{name: "sentinel", body: `{"query":"q","username":"NO_MATCH","confidence":0.1}`},
		{name: "empty username", body: `{"query":"q","username":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := raw(creatorsearch.StrategySmart, tt.body)
			r.SentQuery = creatorsearch.FormatQuery(creatorsearch.StrategySmart, r.OriginalQuery)

			result, err := Normalise(r, 5)
			require.NoError(t, err)
			assert.Equal(t, r.SentQuery, result.EffectiveQuery)

			if tt.wantUser == "" {
				assert.Empty(t, result.Candidates)
				return
			}
			require.Len(t, result.Candidates, 1)
			c := result.Candidates[0]
			assert.Equal(t, tt.wantUser, c.Username)
			assert.Equal(t, tt.wantScore, c.RelevanceScore)
			assert.Equal(t, "Bio mentions Johannesburg", c.MatchReason)
			assert.Equal(t, creatorsearch.TierUnscored, c.MatchTier)
		})
	}
}
