// Package search implements the hybrid (lexical + vector) query executor
// (spec §4.7): experiment context resolution, RRF fusion of bm25 and
// cosine-similarity rankings, rule/synonym application, facet caching, hit
// formatting, and fire-and-forget analytics.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flapjack/flapjack/internal/embeddings"
	"github.com/flapjack/flapjack/internal/events"
	"github.com/flapjack/flapjack/internal/experiment"
	"github.com/flapjack/flapjack/internal/lexical"
	"github.com/flapjack/flapjack/internal/model"
	"github.com/flapjack/flapjack/internal/tenant"
)

// rrfK is the Reciprocal Rank Fusion rank-damping constant from spec §4.7
// step 3; a larger k flattens the influence of top ranks.
const rrfK = 60

// overfetchFactor multiplies hitsPerPage to decide how many candidates
// each phase (lexical, vector) retrieves before fusion re-ranks them.
const overfetchFactor = 5

// ExperimentLookup resolves the single running experiment targeting an
// index, if any. Implemented by the experiment store in production; kept
// as an interface here so the executor doesn't import Postgres directly.
type ExperimentLookup interface {
	RunningForIndex(ctx context.Context, index string) (*model.Experiment, bool, error)
}

// QueryVectorCache caches embedded query vectors keyed by (embedder, text)
// so repeated keystrokes in a typeahead flow don't re-embed identical text.
type QueryVectorCache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vec []float32)
}

// Executor runs search requests against a tenant's resources.
type Executor struct {
	Tenants    *tenant.Manager
	Experiments ExperimentLookup
	VectorCache QueryVectorCache
	AnalyticsBus *events.Bus
}

// Execute runs req against index on behalf of tenantID, implementing spec
// §4.7 steps 1-7 in order.
func (e *Executor) Execute(ctx context.Context, tenantID, index string, req model.SearchRequest) (model.SearchResponse, error) {
	start := time.Now()

	queryID := req.SessionID
	if queryID == "" {
		queryID = uuid.New().String()
	}

	targetIndex := index
	var armID, abTestID, abTestVariantID, assignmentMethod string
	if e.Experiments != nil {
		if exp, ok, err := e.Experiments.RunningForIndex(ctx, index); err == nil && ok {
			bucketKey, method := experiment.ResolveBucketKey(req.UserToken, req.SessionID, queryID)
			assignmentMethod = method
			arm := experiment.Assign(exp.ID, bucketKey, exp.TrafficSplit)
			abTestID, abTestVariantID = exp.ID, arm
			armID = arm
			if arm == "variant" {
				if exp.VariantArm.ModeB() {
					targetIndex = exp.VariantArm.IndexName
				} else {
					applyOverrides(&req, exp.VariantArm.QueryOverrides)
				}
			} else {
				applyOverrides(&req, exp.ControlArm.QueryOverrides)
			}
		}
	}

	if req.SecuredKey != nil {
		mergeSecuredKey(&req)
	}

	hitsPerPage := req.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = 20
	}
	page := req.Page
	if page < 0 {
		page = 0
	}

	res, err := e.Tenants.GetOrLoad(tenantID)
	if err != nil {
		return model.SearchResponse{}, err
	}

	matched := applyRulesAndSynonyms(req.Query, req.Filters, res.Rules(), res.Synonyms())
	req.Query = matched.Query
	filters := matched.Filters

	semanticRatio := 0.0
	if req.SemanticRatio != nil {
		semanticRatio = *req.SemanticRatio
	}

	overfetch := hitsPerPage * overfetchFactor

	lexHits, lexErr := res.Lexical.Search(ctx, req.Query, splitFilters(filters), overfetch)
	var message string
	var fused []model.Hit

	if semanticRatio > 0 && lexErr == nil {
		vecHits, vecErr := e.vectorSearch(ctx, res, req.Query, overfetch)
		if vecErr != nil {
			message = "vector search unavailable, degraded to lexical-only: " + vecErr.Error()
			fused = toHits(lexHits)
		} else {
			fused = fuse(lexHits, vecHits, semanticRatio)
		}
	} else {
		fused = toHits(lexHits)
		if lexErr != nil {
			message = "lexical search error: " + lexErr.Error()
		}
	}

	fused = applyPinningAndHiding(fused, matched.PinnedIDs, matched.HiddenIDs)

	total := len(fused)
	from := page * hitsPerPage
	to := from + hitsPerPage
	if from > total {
		from = total
	}
	if to > total {
		to = total
	}
	pageHits := fused[from:to]

	var facets model.FacetCounts
	if len(req.Facets) > 0 {
		facets = e.facetsFor(ctx, res, req.Facets, filters)
	}

	nbPages := 0
	if hitsPerPage > 0 {
		nbPages = (total + hitsPerPage - 1) / hitsPerPage
	}

	resp := model.SearchResponse{
		Hits:             pageHits,
		NbHits:           total,
		Page:             page,
		NbPages:          nbPages,
		HitsPerPage:      hitsPerPage,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Query:            req.Query,
		Facets:           facets,
		QueryID:          queryID,
		ABTestID:         abTestID,
		ABTestVariantID:  abTestVariantID,
		Message:          message,
	}
	if targetIndex != index {
		resp.IndexUsed = targetIndex
	}

	if e.AnalyticsBus != nil {
		e.AnalyticsBus.Publish(model.AnalyticsEvent{
			QueryID:          queryID,
			TenantID:         tenantID,
			Index:            targetIndex,
			ArmID:            armID,
			AssignmentMethod: assignmentMethod,
			Query:            req.Query,
			ResultCount:      total,
			TookMs:           resp.ProcessingTimeMs,
			TimestampMs:      time.Now().UnixMilli(),
		})
	}

	return resp, nil
}

func applyOverrides(req *model.SearchRequest, overrides map[string]string) {
	for k, v := range overrides {
		switch k {
		case "query":
			req.Query = v
		case "filters":
			req.Filters = v
		}
	}
}

// mergeSecuredKey combines a secured API key's fixed restrictions with the
// caller's request per spec §6.3: filters AND together, hitsPerPage is
// capped (never raised) by the key's limit.
func mergeSecuredKey(req *model.SearchRequest) {
	restr := req.SecuredKey
	if restr.Filters != "" {
		if req.Filters == "" {
			req.Filters = restr.Filters
		} else {
			req.Filters = "(" + req.Filters + ") AND (" + restr.Filters + ")"
		}
	}
	if restr.HitsPerPageLimit != nil && (req.HitsPerPage <= 0 || req.HitsPerPage > *restr.HitsPerPageLimit) {
		req.HitsPerPage = *restr.HitsPerPageLimit
	}
}

func (e *Executor) vectorSearch(ctx context.Context, res *tenant.Resources, query string, topK int) ([]rankedHit, error) {
	settings := res.Settings()
	if len(settings.Embedders) == 0 || len(res.Vectors) == 0 {
		return nil, errNoVectorIndex
	}
	// Only one configured embedder is used; when several are configured,
	// Go's map iteration order decides which one.
	var embedderName string
	for name := range settings.Embedders {
		embedderName = name
		break
	}
	idx, ok := res.Vectors[embedderName]
	if !ok || idx.Len() == 0 {
		return nil, errNoVectorIndex
	}

	cacheKey := embedderName + ":" + query
	var vec []float32
	if e.VectorCache != nil {
		if cached, ok := e.VectorCache.Get(cacheKey); ok {
			vec = cached
		}
	}
	if vec == nil {
		cfg := settings.Embedders[embedderName]
		provider, err := embeddings.New(embeddings.Config{
			Source: cfg.Source, Model: cfg.Model, Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		vec, err = provider.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		if e.VectorCache != nil {
			e.VectorCache.Put(cacheKey, vec)
		}
	}

	hits := idx.Search(vec, topK)
	out := make([]rankedHit, len(hits))
	for i, h := range hits {
		out[i] = rankedHit{docID: h.DocID, score: h.Score}
	}
	return out, nil
}

func (e *Executor) facetsFor(ctx context.Context, res *tenant.Resources, fields []string, filters string) model.FacetCounts {
	cacheKey := strings.Join(fields, ",") + "|" + filters
	if counts, ok := res.FacetCache.Get(cacheKey); ok {
		return counts
	}
	counts, err := res.Lexical.FacetCounts(ctx, fields)
	if err != nil {
		return nil
	}
	res.FacetCache.Put(cacheKey, counts)
	return counts
}

type rankedHit struct {
	docID string
	score float64
}

// splitFilters turns an Algolia-style "f1:v1 AND f2:v2" filter expression
// into the flat AND-of-terms list the lexical index's Search expects.
// Parenthesized groups and OR are not supported by this minimal parser;
// the rule/secured-key merge logic above only ever produces flat AND chains.
func splitFilters(filters string) []string {
	filters = strings.Trim(filters, "()")
	if filters == "" {
		return nil
	}
	parts := strings.Split(filters, " AND ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "()")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toHits(lex []lexical.Hit) []model.Hit {
	out := make([]model.Hit, len(lex))
	for i, h := range lex {
		out[i] = model.Hit{ObjectID: h.DocID, RankingScore: h.Score}
	}
	return out
}

// fuse combines lexical and vector rankings via Reciprocal Rank Fusion
// (spec §4.7 step 3): score(d) = (1-r)/(k+rank_bm25(d)) + r/(k+rank_vec(d)),
// taking the union of both ranked lists.
func fuse(lex []lexical.Hit, vec []rankedHit, semanticRatio float64) []model.Hit {
	scores := make(map[string]float64)
	order := make([]string, 0, len(lex)+len(vec))

	for rank, h := range lex {
		if _, seen := scores[h.DocID]; !seen {
			order = append(order, h.DocID)
		}
		scores[h.DocID] += (1 - semanticRatio) / float64(rrfK+rank+1)
	}
	for rank, h := range vec {
		if _, seen := scores[h.docID]; !seen {
			order = append(order, h.docID)
		}
		scores[h.docID] += semanticRatio / float64(rrfK+rank+1)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	out := make([]model.Hit, len(order))
	for i, docID := range order {
		out[i] = model.Hit{ObjectID: docID, RankingScore: scores[docID]}
	}
	return out
}

var errNoVectorIndex = &noVectorIndexError{}

type noVectorIndexError struct{}

func (e *noVectorIndexError) Error() string { return "no vector index configured for tenant" }
