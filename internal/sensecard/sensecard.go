// Package sensecard assembles the initial ontology-oriented context
// appended to the RLM engine's system instructions (spec.md §4.3): either
// an authored AGENT_GUIDE.md read verbatim, or a generated structured
// summary derived from the ontology index.
package sensecard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ontorlm/internal/ontology"
)

const generatedSizeTarget = 2000

// Load returns the sense card for ontologySource: the sibling
// AGENT_GUIDE.md's contents verbatim if present, else a generated card
// built from idx.
func Load(ontologySource string, idx *ontology.Index) (string, error) {
	guidePath := filepath.Join(filepath.Dir(ontologySource), "AGENT_GUIDE.md")
	if data, err := os.ReadFile(guidePath); err == nil {
		return string(data), nil
	}
	card := Generate(idx)
	if errs := ValidateGrounding(card, idx); len(errs) > 0 {
		return "", fmt.Errorf("generated sense card failed grounding validation: %v", errs)
	}
	return card, nil
}

// Generate synthesizes a structured sense card from idx: a domain
// description (if extractable from the ontology IRI's rdfs:comment), key
// classes (root classes by hierarchy plus label coverage), key properties
// (ranked by pred_freq), and SPARQL hints.
func Generate(idx *ontology.Index) string {
	var b strings.Builder
	b.WriteString("# Ontology Sense Card\n\n")
	b.WriteString(idx.Summary())
	b.WriteString("\n\n")

	if desc := domainDescription(idx); desc != "" {
		b.WriteString("## Domain\n\n")
		b.WriteString(desc)
		b.WriteString("\n\n")
	}

	keyClasses := rankKeyClasses(idx, 8)
	if len(keyClasses) > 0 {
		b.WriteString("## Key classes\n\n")
		for _, iri := range keyClasses {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", displayName(idx, iri), iri))
		}
		b.WriteString("\n")
	}

	keyProps := rankKeyProperties(idx, 8)
	if len(keyProps) > 0 {
		b.WriteString("## Key properties\n\n")
		for _, iri := range keyProps {
			b.WriteString(fmt.Sprintf("- %s (%s), freq=%d\n", displayName(idx, iri), iri, idx.PredFreq[iri]))
		}
		b.WriteString("\n")
	}

	if hints := sparqlHints(idx); len(hints) > 0 {
		b.WriteString("## SPARQL hints\n\n")
		for _, h := range hints {
			b.WriteString("- " + h + "\n")
		}
	}

	out := b.String()
	if len(out) > generatedSizeTarget {
		out = out[:generatedSizeTarget] + "\n...[card truncated to size target]"
	}
	return out
}

func displayName(idx *ontology.Index, iri string) string {
	if label, ok := idx.Labels[iri]; ok && label != "" {
		return label
	}
	return ontology.LocalName(iri)
}

// domainDescription looks for an rdfs:comment on the ontology's own IRI
// (the source file's base name has no bearing; this only reads what the
// index captured from the graph itself).
func domainDescription(idx *ontology.Index) string {
	// Heuristic: prefer a comment attached to an IRI with no '#' local part
	// suffix differences — i.e. the shortest IRI among those with comments,
	// which is typically the ontology/document IRI itself.
	best := ""
	for iri, comment := range idx.Comments {
		if best == "" || len(iri) < len(best) {
			if comment != "" {
				best = iri
			}
		}
	}
	if best == "" {
		return ""
	}
	return idx.Comments[best]
}

// rankKeyClasses favors classes with no superclass (hierarchy roots),
// breaking ties by whether a label exists, then by IRI for determinism.
func rankKeyClasses(idx *ontology.Index, n int) []string {
	classes := append([]string{}, idx.Classes()...)
	sort.SliceStable(classes, func(i, j int) bool {
		ri, rj := classRank(idx, classes[i]), classRank(idx, classes[j])
		if ri != rj {
			return ri < rj
		}
		return classes[i] < classes[j]
	})
	if len(classes) > n {
		classes = classes[:n]
	}
	return classes
}

func classRank(idx *ontology.Index, iri string) int {
	isRoot := len(idx.Supers[iri]) == 0
	hasLabel := idx.Labels[iri] != ""
	switch {
	case isRoot && hasLabel:
		return 0
	case isRoot:
		return 1
	case hasLabel:
		return 2
	default:
		return 3
	}
}

func rankKeyProperties(idx *ontology.Index, n int) []string {
	props := append([]string{}, idx.Properties()...)
	sort.SliceStable(props, func(i, j int) bool {
		fi, fj := idx.PredFreq[props[i]], idx.PredFreq[props[j]]
		if fi != fj {
			return fi > fj
		}
		return props[i] < props[j]
	})
	if len(props) > n {
		props = props[:n]
	}
	return props
}

func sparqlHints(idx *ontology.Index) []string {
	var hints []string
	for _, subs := range idx.Subs {
		if len(subs) > 0 {
			hints = append(hints, "class hierarchy present: use rdfs:subClassOf* for transitive membership queries")
			break
		}
	}
	if len(idx.Doms) > 0 {
		hints = append(hints, "properties carry rdfs:domain/rdfs:range; use them to constrain SELECT patterns")
	}
	return hints
}

// ValidateGrounding implements spec.md §4.3's invariant check: every IRI
// mentioned in a generated card must appear in the index. Authored guides
// are never validated (they are not generated).
func ValidateGrounding(card string, idx *ontology.Index) []string {
	var errs []string
	known := map[string]struct{}{}
	for _, c := range idx.Classes() {
		known[c] = struct{}{}
	}
	for _, p := range idx.Properties() {
		known[p] = struct{}{}
	}
	for iri := range known {
		_ = iri // presence check happens below via substring scan
	}
	for iri := range allIRIsMentioned(card) {
		if _, ok := known[iri]; !ok {
			errs = append(errs, fmt.Sprintf("ungrounded IRI mentioned in sense card: %s", iri))
		}
	}
	return errs
}

// allIRIsMentioned extracts substrings that look like absolute IRIs
// (http:// or https://) bounded by whitespace, parens, or line edges.
func allIRIsMentioned(text string) map[string]struct{} {
	out := map[string]struct{}{}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\n', '\t', '(', ')', ',', '"':
			return true
		default:
			return false
		}
	})
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			out[f] = struct{}{}
		}
	}
	return out
}
