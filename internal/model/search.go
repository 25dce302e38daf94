package model

// SearchRequest is the Algolia-compatible query envelope accepted by
// POST /1/indexes/:index/query.
type SearchRequest struct {
	Query              string            `json:"query"`
	Filters            string            `json:"filters,omitempty"`
	Facets             []string          `json:"facets,omitempty"`
	Page               int               `json:"page,omitempty"`
	HitsPerPage        int               `json:"hitsPerPage,omitempty"`
	AttributesToRetrieve []string        `json:"attributesToRetrieve,omitempty"`
	AttributesToHighlight []string       `json:"attributesToHighlight,omitempty"`
	AttributesToSnippet []string         `json:"attributesToSnippet,omitempty"`
	UserToken          string            `json:"userToken,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
	ClickAnalytics     bool              `json:"clickAnalytics,omitempty"`
	SemanticRatio      *float64          `json:"semanticRatio,omitempty"`
	AroundLatLng       string            `json:"aroundLatLng,omitempty"`
	AroundRadiusM      float64           `json:"aroundRadius,omitempty"`
	SecuredKey         *SecuredKeyRestrictions `json:"-"`
}

// SecuredKeyRestrictions are server-imposed restrictions carried by a
// secured API key, merged into the request at query time regardless of
// what the client asked for (spec §6.3).
type SecuredKeyRestrictions struct {
	Filters          string
	RestrictIndices  []string
	HitsPerPageLimit *int
}

// Hit is a single formatted search result.
type Hit struct {
	ObjectID          string                 `json:"objectID"`
	Fields            map[string]interface{} `json:"-"`
	HighlightResult   map[string]string      `json:"_highlightResult,omitempty"`
	SnippetResult     map[string]string      `json:"_snippetResult,omitempty"`
	RankingScore      float64                `json:"_rankingScore,omitempty"`
}

// FacetCounts maps facet attribute -> value -> count.
type FacetCounts map[string]map[string]int

// SearchResponse is the formatted result returned to clients.
type SearchResponse struct {
	Hits             []Hit       `json:"hits"`
	NbHits           int         `json:"nbHits"`
	Page             int         `json:"page"`
	NbPages          int         `json:"nbPages"`
	HitsPerPage      int         `json:"hitsPerPage"`
	ProcessingTimeMs int64       `json:"processingTimeMS"`
	Query            string      `json:"query"`
	Facets           FacetCounts `json:"facets,omitempty"`
	QueryID          string      `json:"queryID,omitempty"`
	ABTestID         string      `json:"abTestID,omitempty"`
	ABTestVariantID  string      `json:"abTestVariantID,omitempty"`
	IndexUsed        string      `json:"indexUsed,omitempty"`
	Message          string      `json:"message,omitempty"`
}

// AnalyticsEvent is the fire-and-forget record emitted after each search,
// consumed by the (out-of-scope) metrics rollup pipeline.
type AnalyticsEvent struct {
	QueryID          string `json:"queryId"`
	TenantID         string `json:"tenantId"`
	Index            string `json:"index"`
	ArmID            string `json:"armId,omitempty"`
	AssignmentMethod string `json:"assignmentMethod,omitempty"`
	Query            string `json:"query"`
	ResultCount      int    `json:"resultCount"`
	TookMs           int64  `json:"tookMs"`
	TimestampMs      int64  `json:"timestampMs"`
}

// Rule is a pinned/hidden-doc or filter-rewrite rule applied during the
// lexical phase (spec §4.7 step 4).
type Rule struct {
	ID          string   `json:"objectID"`
	Pattern     string   `json:"pattern"`
	PinnedIDs   []string `json:"pinnedIds,omitempty"`
	HiddenIDs   []string `json:"hiddenIds,omitempty"`
	FilterAppend string  `json:"filterAppend,omitempty"`
}

// SynonymSet is a single synonym group applied to query expansion.
type SynonymSet struct {
	ID       string   `json:"objectID"`
	Type     string   `json:"type"` // "synonym" | "oneWaySynonym"
	Input    string   `json:"input,omitempty"`
	Synonyms []string `json:"synonyms"`
}
