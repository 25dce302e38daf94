package search

import "github.com/flapjack/flapjack/internal/model"

// ruleMatch is the outcome of applying a tenant's rules and synonyms to a
// request (spec §4.7 step 4): query text after synonym expansion, filters
// after any rule's filterAppend, and pinned/hidden doc IDs from matching
// rules.
type ruleMatch struct {
	Query     string
	Filters   string
	PinnedIDs []string
	HiddenIDs map[string]bool
}

// applyRulesAndSynonyms matches req.Query against a tenant's rule patterns
// (exact match; a rule with an empty pattern matches every query) and
// expands the query from synonym sets whose Input equals it, appending that
// set's first synonym. A set's Type is not read, so sets without an Input
// (two-way synonym groups) are never applied.
func applyRulesAndSynonyms(query, filters string, rules []model.Rule, synonyms []model.SynonymSet) ruleMatch {
	m := ruleMatch{Query: query, Filters: filters, HiddenIDs: make(map[string]bool)}

	for _, r := range rules {
		if r.Pattern != "" && r.Pattern != query {
			continue
		}
		m.PinnedIDs = append(m.PinnedIDs, r.PinnedIDs...)
		for _, id := range r.HiddenIDs {
			m.HiddenIDs[id] = true
		}
		if r.FilterAppend != "" {
			if m.Filters == "" {
				m.Filters = r.FilterAppend
			} else {
				m.Filters = "(" + m.Filters + ") AND (" + r.FilterAppend + ")"
			}
		}
	}

	for _, syn := range synonyms {
		if syn.Input != "" && syn.Input == query && len(syn.Synonyms) > 0 {
			m.Query = query + " " + syn.Synonyms[0]
		}
	}

	return m
}

// applyPinningAndHiding reorders hits so pinned IDs lead (in pin order)
// and removes hidden IDs, per spec §4.7 step 4.
func applyPinningAndHiding(hits []model.Hit, pinnedIDs []string, hiddenIDs map[string]bool) []model.Hit {
	if len(pinnedIDs) == 0 && len(hiddenIDs) == 0 {
		return hits
	}

	byID := make(map[string]model.Hit, len(hits))
	for _, h := range hits {
		byID[h.ObjectID] = h
	}

	out := make([]model.Hit, 0, len(hits))
	seen := make(map[string]bool, len(pinnedIDs))
	for _, id := range pinnedIDs {
		if h, ok := byID[id]; ok && !hiddenIDs[id] {
			out = append(out, h)
			seen[id] = true
		}
	}
	for _, h := range hits {
		if seen[h.ObjectID] || hiddenIDs[h.ObjectID] {
			continue
		}
		out = append(out, h)
	}
	return out
}
