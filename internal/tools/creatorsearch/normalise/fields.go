package normalise

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
)

// synonyms lists gjson paths for one canonical field, highest priority first
type synonyms []string

// candidateFields maps every canonical MatchCandidate field to the raw names backends use for it
var candidateFields = struct {
	username, displayName, bio, followers, picture synonyms
	score, reason, tier, verified, discovery       synonyms
	videos                                          synonyms
}{
	username:    synonyms{"username", "unique_id", "uniqueId", "user.unique_id", "user.uniqueId", "user.username"},
	displayName: synonyms{"display_name", "displayName", "nickname", "nickName", "user.nickname", "user.nickName"},
	bio:         synonyms{"bio", "signature", "user.signature", "user.bio"},
	followers: synonyms{
		"follower_count", "followerCount",
		"stats.follower_count", "stats.followerCount",
		"user.follower_count", "user.followerCount",
		"followers",
	},
	picture: synonyms{
		"profile_pic", "profilePic", "profile_picture", "profilePicture",
		"avatar_larger", "avatar_larger.url_list.0",
		"avatar_medium", "avatar_medium.url_list.0",
		"avatar_thumb", "avatar_thumb.url_list.0",
		"avatarLarger", "avatarMedium", "avatarThumb",
		"user.avatarLarger", "user.avatar_larger.url_list.0",
		"avatar", "avatar_url",
	},
	score:     synonyms{"relevance_score", "relevanceScore", "score", "search_relevance", "analysis_result.score"},
	reason:    synonyms{"match_reason", "matchReason", "why_matches", "whyMatches", "match_explanation", "explanation", "analysis_result.explanation"},
	tier:      synonyms{"match_tier", "matchTier", "match_type", "matchType", "tier"},
	verified:  synonyms{"verified", "user.verified"},
	discovery: synonyms{"discovery_method", "discoveryMethod", "source"},
	videos:    synonyms{"videos", "recent_videos", "recentVideos"},
}

// videoFields maps the canonical VideoSummary fields to both per-video conventions
var videoFields = struct {
	id, caption, thumbnail, score, thumbnailAnalysis synonyms
}{
	id:      synonyms{"id", "aweme_id", "video_id"},
	caption: synonyms{"caption", "desc", "description"},
	thumbnail: synonyms{
		"thumbnail", "thumbnail.url_list.0",
		"thumbnail_url", "thumbnailUrl",
		"cover", "cover.url_list.0",
		"origin_cover", "origin_cover.url_list.0",
	},
	score:             synonyms{"relevance_score", "relevanceScore", "score"},
	thumbnailAnalysis: synonyms{"thumbnail_analysis", "thumbnailAnalysis", "image_analysis"},
}

// resultFields covers top-level result containers per raw shape
var resultFields = struct {
	query, effectiveQuery, criteria         synonyms
	matches, exactMatches, partialMatches   synonyms
	smartUsername, smartConfidence, smartWhy synonyms
}{
	query:           synonyms{"query"},
	effectiveQuery:  synonyms{"effective_query", "effectiveQuery", "optimized_query", "query"},
	criteria:        synonyms{"required_criteria", "requiredCriteria", "criteria"},
	matches:         synonyms{"matches", "results", "users", "profiles"},
	exactMatches:    synonyms{"exact_matches", "exactMatches"},
	partialMatches:  synonyms{"partial_matches", "partialMatches"},
	smartUsername:   synonyms{"username", "matched_username", "result"},
	smartConfidence: synonyms{"confidence", "confidence_score", "score"},
	smartWhy:        synonyms{"explanation", "reasoning", "reason"},
}

// analysisFields covers the content analysis response
var analysisFields = struct {
	status, score, explanation, thumbnails, message synonyms
}{
	status:      synonyms{"status", "analysis_status"},
	score:       synonyms{"relevance_score", "relevanceScore", "score"},
	explanation: synonyms{"explanation", "analysis", "summary"},
	thumbnails:  synonyms{"thumbnail_analysis", "thumbnailAnalysis", "image_analysis"},
	message:     synonyms{"message", "detail", "error"},
}

// first returns the first populated synonym, treating null and empty strings as absent
func first(node gjson.Result, paths synonyms) (gjson.Result, bool) {
	for _, path := range paths {
		res := node.Get(path)
		switch {
		case !res.Exists(), res.Type == gjson.Null:
			continue
		case res.Type == gjson.String && strings.TrimSpace(res.Str) == "":
			continue
		}
		return res, true
	}
	return gjson.Result{}, false
}

// stringAt returns the first synonym holding a string, or an empty string
func stringAt(node gjson.Result, paths synonyms) string {
	for _, path := range paths {
		res := node.Get(path)
		if res.Type == gjson.String && strings.TrimSpace(res.Str) != "" {
			return strings.TrimSpace(res.Str)
		}
	}
	return ""
}

// countAt returns the first numeric synonym as a non-negative count
func countAt(node gjson.Result, paths synonyms) int64 {
	res, ok := first(node, paths)
	if !ok {
		return 0
	}
	var v float64
	switch res.Type {
	case gjson.Number:
		v = res.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(res.Str), ",", ""), 64)
		if err != nil {
			return 0
		}
		v = parsed
	default:
		return 0
	}
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// scoreAt returns the first synonym that holds a score, clamped to [0,1]. Absent stays nil.
func scoreAt(node gjson.Result, paths synonyms) *float64 {
	for _, path := range paths {
		res := node.Get(path)
		var v float64
		switch res.Type {
		case gjson.Number:
			v = res.Num
		case gjson.String:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(res.Str), 64)
			if err != nil {
				continue
			}
			v = parsed
		default:
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		return creatorsearch.Float(Clamp(v))
	}
	return nil
}

// boolAt returns the first boolean synonym
func boolAt(node gjson.Result, paths synonyms) bool {
	for _, path := range paths {
		res := node.Get(path)
		if res.Type == gjson.True || res.Type == gjson.False {
			return res.Bool()
		}
	}
	return false
}

// textAt returns a string synonym verbatim, or the raw JSON of a structured one
func textAt(node gjson.Result, paths synonyms) *string {
	res, ok := first(node, paths)
	if !ok {
		return nil
	}
	text := res.Raw
	if res.Type == gjson.String {
		text = strings.TrimSpace(res.Str)
	}
	return &text
}

// stringsAt returns the first synonym holding an array, keeping its non-empty entries
func stringsAt(node gjson.Result, paths synonyms) []string {
	out := []string{}
	res, ok := first(node, paths)
	if !ok || !res.IsArray() {
		return out
	}
	for _, item := range res.Array() {
		var s string
		switch {
		case item.Type == gjson.String:
			s = strings.TrimSpace(item.Str)
		case item.IsObject():
			s = stringAt(item, synonyms{"analysis", "description", "text"})
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// arrayAt returns the elements of the first synonym that holds an array
func arrayAt(node gjson.Result, paths synonyms) ([]gjson.Result, bool) {
	for _, path := range paths {
		res := node.Get(path)
		if res.IsArray() {
			return res.Array(), true
		}
	}
	return nil, false
}

// Clamp coerces a score into [0,1]
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
