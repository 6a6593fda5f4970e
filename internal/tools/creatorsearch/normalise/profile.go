package normalise

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sammcj/creator-scout/internal/tools/creatorsearch"
)

// profileWrappers are envelope keys some deployments nest the profile under
var profileWrappers = synonyms{"userInfo", "user_info", "data"}

// Profile maps a GET /user/{username} body to a MatchCandidate.
// The backend answers failed lookups with a 200 and a minimal object carrying no handle,
// so the requested username fills in when the body has none.
func Profile(username string, body []byte) (*creatorsearch.MatchCandidate, error) {
	if !gjson.ValidBytes(body) {
		return nil, &creatorsearch.NormalizationError{Strategy: "profile", Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &creatorsearch.NormalizationError{Strategy: "profile", Reason: "response is not an object"}
	}

	node := root
	for _, key := range profileWrappers {
		if inner := root.Get(key); inner.IsObject() {
			node = inner
			break
		}
	}

	candidate := candidateFrom(node, creatorsearch.TierUnscored)
	if candidate.Username == "" {
		candidate.Username = cleanUsername(username)
	}
	if candidate.Username == "" {
		return nil, &creatorsearch.NormalizationError{Strategy: "profile", Reason: "response has no username"}
	}
	return &candidate, nil
}

// MergeProfile fills the empty fields of a thin candidate from a full profile.
// Ranking fields (score, reason, tier) always stay with the thin candidate.
func MergeProfile(thin creatorsearch.MatchCandidate, full *creatorsearch.MatchCandidate) creatorsearch.MatchCandidate {
	if full == nil || !strings.EqualFold(thin.Username, full.Username) {
		return thin
	}

	merged := thin
	if merged.DisplayName == "" || merged.DisplayName == merged.Username {
		merged.DisplayName = full.DisplayName
	}
	if merged.Bio == "" {
		merged.Bio = full.Bio
	}
	if merged.FollowerCount == 0 {
		merged.FollowerCount = full.FollowerCount
	}
	if merged.ProfilePictureRef == "" {
		merged.ProfilePictureRef = full.ProfilePictureRef
	}
	if !merged.Verified {
		merged.Verified = full.Verified
	}
	if merged.DiscoveryMethod == "" {
		merged.DiscoveryMethod = full.DiscoveryMethod
	}
	if len(merged.Videos) == 0 && len(full.Videos) > 0 {
		merged.Videos = full.Videos
	}
	return merged
}

// Analysis maps a POST /analyze-content body to a ContentAnalysis.
// An unknown or absent status is reported as success when a score is present and as error otherwise.
func Analysis(username string, body []byte) (*creatorsearch.ContentAnalysis, error) {
	if !gjson.ValidBytes(body) {
		return nil, &creatorsearch.NormalizationError{Strategy: "analysis", Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &creatorsearch.NormalizationError{Strategy: "analysis", Reason: "response is not an object"}
	}

	analysis := &creatorsearch.ContentAnalysis{
		Username:          cleanUsername(username),
		RelevanceScore:    scoreAt(root, analysisFields.score),
		Explanation:       stringAt(root, analysisFields.explanation),
		ThumbnailAnalysis: stringsAt(root, analysisFields.thumbnails),
		Message:           stringAt(root, analysisFields.message),
	}

	switch status := creatorsearch.AnalysisStatus(strings.ToLower(stringAt(root, analysisFields.status))); status {
	case creatorsearch.AnalysisSuccess, creatorsearch.AnalysisLimited, creatorsearch.AnalysisFailed:
		analysis.Status = status
	default:
		if analysis.RelevanceScore != nil {
			analysis.Status = creatorsearch.AnalysisSuccess
		} else {
			analysis.Status = creatorsearch.AnalysisFailed
		}
	}
	return analysis, nil
}
