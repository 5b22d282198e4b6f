package ontology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTurtle = `
@prefix ex: <http://example.org/onto#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .

ex:Animal a owl:Class ;
  rdfs:label "Animal"@en ;
  rdfs:comment "A living organism." .

ex:Dog a owl:Class ;
  rdfs:subClassOf ex:Animal ;
  rdfs:label "Dog"@en .

ex:name a owl:DatatypeProperty ;
  rdfs:domain ex:Animal ;
  rdfs:range ex:Animal ;
  rdfs:label "name"@en .
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.ttl")
	require.NoError(t, os.WriteFile(path, []byte(sampleTurtle), 0o644))
	return path
}

func TestBuildIndex_ClassesAndProperties(t *testing.T) {
	path := writeSample(t)
	idx, err := BuildIndex(path, nil)
	require.NoError(t, err)

	assert.Contains(t, idx.Classes(), "http://example.org/onto#Animal")
	assert.Contains(t, idx.Classes(), "http://example.org/onto#Dog")
	assert.Contains(t, idx.Properties(), "http://example.org/onto#name")
}

func TestBuildIndex_HierarchyInvariant(t *testing.T) {
	path := writeSample(t)
	idx, err := BuildIndex(path, nil)
	require.NoError(t, err)

	for a, subs := range idx.Subs {
		for _, b := range subs {
			found := false
			for _, s := range idx.Supers[b] {
				if s == a {
					found = true
					break
				}
			}
			assert.True(t, found, "supers[%s] should contain %s", b, a)
		}
	}
}

func TestBuildIndex_LabelsInvariant(t *testing.T) {
	path := writeSample(t)
	idx, err := BuildIndex(path, nil)
	require.NoError(t, err)

	for iri := range idx.Labels {
		assert.True(t, idx.IsClass(iri) || idx.IsProperty(iri))
	}
}

func TestBuildIndex_EmptyOntology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ttl")
	require.NoError(t, os.WriteFile(path, []byte("@prefix ex: <http://example.org/> .\n"), 0o644))

	_, err := BuildIndex(path, nil)
	require.ErrorIs(t, err, ErrEmptyOntology)
}

func TestSummary_Deterministic(t *testing.T) {
	path := writeSample(t)
	idx1, err := BuildIndex(path, nil)
	require.NoError(t, err)
	idx2, err := BuildIndex(path, nil)
	require.NoError(t, err)

	assert.Equal(t, idx1.Summary(), idx2.Summary())
}

func TestFormatFromExtension(t *testing.T) {
	cases := map[string]Format{
		"a.ttl":    FormatTurtle,
		"a.nt":     FormatNTriples,
		"a.nq":     FormatNQuads,
		"a.trig":   FormatTriG,
		"a.rdf":    FormatRDFXML,
		"a.xml":    FormatRDFXML,
		"a.jsonld": FormatJSONLD,
	}
	for name, want := range cases {
		got, err := FormatFromExtension(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTransitiveClosure_DedupesCycles(t *testing.T) {
	supers := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"}, // cycle
	}
	out := transitiveClosure(supers, "A")
	seen := map[string]int{}
	for _, v := range out {
		seen[v]++
	}
	for k, c := range seen {
		assert.Equal(t, 1, c, "expected %s to appear once", k)
	}
}
