package backend

import "github.com/sammcj/creator-scout/internal/tools/creatorsearch"

// RawResponse is one endpoint's native body plus what was sent to obtain it.
// Field names inside Body differ per endpoint; the normaliser absorbs that.
type RawResponse struct {
	Strategy      creatorsearch.Strategy
	OriginalQuery string
	SentQuery     string
	Body          []byte
}

// smartSearchRequest is the body of POST /smart-search
type smartSearchRequest struct {
	Query string `json:"query"`
}

// keywordSearchRequest is the body of POST /search-users
type keywordSearchRequest struct {
	Query        string                  `json:"query"`
	Count        int                     `json:"count"`
	Criteria     *creatorsearch.Criteria `json:"criteria,omitempty"`
	DeepAnalysis bool                    `json:"deep_analysis"`
}

// rankedSearchRequest is the body of POST /enhanced-search and POST /web-enhanced-search
type rankedSearchRequest struct {
	Query             string  `json:"query"`
	MaxResults        int     `json:"max_results"`
	MinRelevanceScore float64 `json:"min_relevance_score,omitempty"`
}

// preciseSearchRequest is the body of POST /precise-search
type preciseSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// analysisRequest is the body of POST /analyze-content
type analysisRequest struct {
	Username string   `json:"username"`
	Query    string   `json:"query"`
	Criteria []string `json:"criteria"`
}

// endpoint describes one backend route
type endpoint struct {
	name   string
	method string
	path   string
	long   bool
}

var (
	endpointSmart       = endpoint{name: "smart-search", method: "POST", path: "/smart-search"}
	endpointKeyword     = endpoint{name: "search-users", method: "POST", path: "/search-users", long: true}
	endpointEnhanced    = endpoint{name: "enhanced-search", method: "POST", path: "/enhanced-search", long: true}
	endpointPrecise     = endpoint{name: "precise-search", method: "POST", path: "/precise-search", long: true}
	endpointWebEnhanced = endpoint{name: "web-enhanced-search", method: "POST", path: "/web-enhanced-search", long: true}
	endpointProfile     = endpoint{name: "user", method: "GET", path: "/user/"}
	endpointAnalysis    = endpoint{name: "analyze-content", method: "POST", path: "/analyze-content", long: true}
	endpointResolve     = endpoint{name: "resolve-video", method: "GET", path: "/resolve-video"}
)
