package tools

import (
	"context"
	"sort"
	"strings"

	"ontorlm/internal/ontology"
)

// EntityMatch is one row of search_entity's result list (spec.md §4.2.1).
type EntityMatch struct {
	URI       string `json:"uri"`
	Label     string `json:"label"`
	MatchType string `json:"match_type"`
}

const (
	matchLabelExact         = "label_exact"
	matchLabelSubstring     = "label_substring"
	matchLocalnameSubstring = "localname_substring"
	matchIRISubstring       = "iri_substring"
)

var matchRank = map[string]int{
	matchLabelExact:         0,
	matchLabelSubstring:     1,
	matchLocalnameSubstring: 2,
	matchIRISubstring:       3,
}

// SearchEntityTool implements spec.md §4.2.1 over a read-only ontology
// Index.
type SearchEntityTool struct {
	Index *ontology.Index
}

func (t *SearchEntityTool) Describe() Spec {
	return Spec{
		Description: "Search the ontology for entities (classes or properties) by label, IRI, or both.",
		Parameters: map[string]any{
			"query":     "string, required",
			"limit":     "integer, default 5, clamped to [1,10]",
			"search_in": `one of "label","iri","all", default "all"`,
		},
	}
}

func (t *SearchEntityTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	limit := 5
	if v, ok := args["limit"]; ok {
		limit = toInt(v, 5)
	}
	searchIn, _ := args["search_in"].(string)
	if searchIn == "" {
		searchIn = "all"
	}
	return SearchEntity(t.Index, query, limit, searchIn), nil
}

// SearchEntity is the pure function backing SearchEntityTool.Execute so it
// can be exercised directly by the sandbox and by tests without going
// through the map[string]any argument-passing path.
func SearchEntity(idx *ontology.Index, query string, limit int, searchIn string) []EntityMatch {
	if limit < 1 {
		limit = 1
	}
	if limit > 10 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []EntityMatch{}
	}

	allowLabel := searchIn == "label" || searchIn == "all"
	allowIRI := searchIn == "iri" || searchIn == "all"

	candidates := make([]string, 0, len(idx.Classes())+len(idx.Properties()))
	candidates = append(candidates, idx.Classes()...)
	candidates = append(candidates, idx.Properties()...)

	seen := map[string]struct{}{}
	var matches []EntityMatch
	for _, iri := range candidates {
		if _, dup := seen[iri]; dup {
			continue
		}
		label := idx.Labels[iri]
		localname := ontology.LocalName(iri)
		var matchType string

		switch {
		case allowLabel && label != "" && strings.EqualFold(label, query):
			matchType = matchLabelExact
		case allowLabel && label != "" && strings.Contains(strings.ToLower(label), q):
			matchType = matchLabelSubstring
		case allowIRI && strings.Contains(strings.ToLower(localname), q):
			matchType = matchLocalnameSubstring
		case allowIRI && strings.Contains(strings.ToLower(iri), q):
			matchType = matchIRISubstring
		default:
			continue
		}

		seen[iri] = struct{}{}
		matches = append(matches, EntityMatch{URI: iri, Label: label, MatchType: matchType})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := matchRank[matches[i].MatchType], matchRank[matches[j].MatchType]
		if ri != rj {
			return ri < rj
		}
		li, lj := len(matches[i].Label), len(matches[j].Label)
		if li == 0 {
			li = len(matches[i].URI)
		}
		if lj == 0 {
			lj = len(matches[j].URI)
		}
		return li < lj
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []EntityMatch{}
	}
	return matches
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return fallback
	}
}
