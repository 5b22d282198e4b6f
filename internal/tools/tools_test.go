package tools

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontorlm/internal/ontology"
)

func buildTestIndex(t *testing.T) *ontology.Index {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/t.ttl"
	content := `
@prefix ex: <http://example.org/onto#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
ex:Protein a owl:Class ; rdfs:label "Protein"@en .
ex:Gene a owl:Class ; rdfs:label "Gene"@en .
ex:encodes a owl:ObjectProperty ; rdfs:domain ex:Gene ; rdfs:range ex:Protein ; rdfs:label "encodes"@en .
ex:GeneEncoder a owl:Class ; rdfs:label "Widget"@en .
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	built, err := ontology.BuildIndex(path, nil)
	require.NoError(t, err)
	return built
}

func TestSearchEntity_ClampsLimit(t *testing.T) {
	idx := buildTestIndex(t)
	matches := SearchEntity(idx, "e", 100, "all")
	assert.LessOrEqual(t, len(matches), 10)
}

func TestSearchEntity_ExactLabelMatch(t *testing.T) {
	idx := buildTestIndex(t)
	matches := SearchEntity(idx, "Protein", 5, "all")
	require.NotEmpty(t, matches)
	assert.Equal(t, matchLabelExact, matches[0].MatchType)
	assert.Contains(t, matches[0].URI, "Protein")
}

func TestSearchEntity_NoMatchIsEmptyNotError(t *testing.T) {
	idx := buildTestIndex(t)
	matches := SearchEntity(idx, "zzz_nonexistent", 5, "all")
	assert.Empty(t, matches)
}

// TestSearchEntity_LabelSearchDoesNotFallBackToLocalname guards the
// search_in="label" tier boundary: "encoder" matches ex:GeneEncoder's IRI
// local name but not its label ("Widget"), so a label-only search must miss
// it even though an "all" search finds it via the local-name tier.
func TestSearchEntity_LabelSearchDoesNotFallBackToLocalname(t *testing.T) {
	idx := buildTestIndex(t)

	labelMatches := SearchEntity(idx, "encoder", 5, "label")
	for _, m := range labelMatches {
		assert.NotContains(t, m.URI, "GeneEncoder")
	}

	allMatches := SearchEntity(idx, "encoder", 5, "all")
	found := false
	for _, m := range allMatches {
		if strings.Contains(m.URI, "GeneEncoder") {
			found = true
			assert.Equal(t, matchLocalnameSubstring, m.MatchType)
		}
	}
	assert.True(t, found, "expected GeneEncoder to match via localname_substring under search_in=all")
}

func TestPrepareSelectQuery_AppendsDefaultLimit(t *testing.T) {
	q, err := prepareSelectQuery("SELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Contains(t, q, "LIMIT 100")
}

func TestPrepareSelectQuery_HonorsExplicitLimit(t *testing.T) {
	q, err := prepareSelectQuery("SELECT ?s WHERE { ?s ?p ?o } LIMIT 50")
	require.NoError(t, err)
	assert.Contains(t, q, "LIMIT 50")
	assert.NotContains(t, q, "LIMIT 100")
}

func TestPrepareSelectQuery_RejectsOverCeiling(t *testing.T) {
	_, err := prepareSelectQuery("SELECT ?s WHERE { ?s ?p ?o } LIMIT 1001")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestPrepareSelectQuery_RejectsNonSelect(t *testing.T) {
	_, err := prepareSelectQuery("CONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o } LIMIT 10")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedQueryKind)
}

func TestPrepareSelectQuery_AllowsPrefixPreamble(t *testing.T) {
	q, err := prepareSelectQuery("PREFIX ex: <http://example.org/>\nSELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Contains(t, q, "LIMIT 100")
}

type fakeEndpoint struct {
	rows []map[string]string
	err  error
}

func (f *fakeEndpoint) Select(ctx context.Context, query string, timeout time.Duration) ([]map[string]string, error) {
	return f.rows, f.err
}

func TestSparqlSelect_WrapsEndpointError(t *testing.T) {
	ep := &fakeEndpoint{err: &EndpointError{Category: CategoryTimeout, Message: "deadline exceeded"}}
	_, err := SparqlSelect(context.Background(), ep, "SELECT ?s WHERE { ?s ?p ?o }", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSparqlExecution)
}

func TestSparqlSelect_PreservesRowOrder(t *testing.T) {
	ep := &fakeEndpoint{rows: []map[string]string{
		{"s": "a"}, {"s": "b"}, {"s": "c"},
	}}
	rows, err := SparqlSelect(context.Background(), ep, "SELECT ?s WHERE { ?s ?p ?o }", time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0]["s"])
	assert.Equal(t, "c", rows[2]["s"])
}
