package ontology

import (
	"fmt"
	"sort"
	"strings"
)

// Index is the structured metadata view of an RDF graph described in
// spec.md §3. All maps preserve first-insertion order in their companion
// "Order" slices so that repeated builds over the same ontology produce
// byte-identical summaries and prompts.
type Index struct {
	Source     string
	Namespaces map[string]string // prefix -> IRI
	NSOrder    []string          // prefixes in first-seen order

	classes      map[string]struct{}
	ClassOrder   []string
	properties   map[string]struct{}
	PropOrder    []string

	Labels  map[string]string   // IRI -> preferred label
	ByLabel map[string][]string // case-normalized label -> IRIs, in label-assignment order

	Subs   map[string][]string // IRI -> direct subclasses
	Supers map[string][]string // IRI -> direct superclasses
	Doms   map[string][]string // property IRI -> domain classes
	Rngs   map[string][]string // property IRI -> range classes

	PredFreq  map[string]int
	PredOrder []string

	Comments map[string]string // IRI -> rdfs:comment, used by the sense-card generator

	TripleCount int
	Warnings    []string
}

// Classes returns the discovered class IRIs in first-seen order.
func (idx *Index) Classes() []string { return idx.ClassOrder }

// Properties returns the discovered property IRIs in first-seen order.
func (idx *Index) Properties() []string { return idx.PropOrder }

func (idx *Index) IsClass(iri string) bool {
	_, ok := idx.classes[iri]
	return ok
}

func (idx *Index) IsProperty(iri string) bool {
	_, ok := idx.properties[iri]
	return ok
}

// TransitiveSupers walks Supers from iri, deduping by IRI, never caching —
// spec.md §4.1/§9: closure is computed on demand to keep memory bounded.
func (idx *Index) TransitiveSupers(iri string) []string {
	return transitiveClosure(idx.Supers, iri)
}

// TransitiveSubs walks Subs from iri, deduping by IRI, never caching.
func (idx *Index) TransitiveSubs(iri string) []string {
	return transitiveClosure(idx.Subs, iri)
}

func transitiveClosure(edges map[string][]string, start string) []string {
	seen := map[string]struct{}{start: {}}
	var out []string
	queue := append([]string{}, edges[start]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, edges[next]...)
	}
	return out
}

// BuildIndex parses source and constructs the metadata index. extraNS lets
// callers register additional prefix->IRI mappings beyond what the file's
// own @prefix/xmlns declarations establish (rdf2go/knakk/rdf don't surface
// discovered prefixes for every format uniformly, so namespaces are
// primarily derived heuristically from IRIs actually observed).
func BuildIndex(source string, extraNS map[string]string) (*Index, error) {
	triples, warnings, err := parseFile(source)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Source:     source,
		Namespaces: map[string]string{},
		classes:    map[string]struct{}{},
		properties: map[string]struct{}{},
		Labels:     map[string]string{},
		ByLabel:    map[string][]string{},
		Subs:       map[string][]string{},
		Supers:     map[string][]string{},
		Doms:       map[string][]string{},
		Rngs:       map[string][]string{},
		PredFreq:   map[string]int{},
		Comments:   map[string]string{},
		Warnings:   warnings,
	}
	for p, ns := range extraNS {
		idx.addNamespace(p, ns)
	}

	idx.TripleCount = len(triples)

	// Pass 1: classes, properties, hierarchy, domain/range, predicate freq.
	labelCandidates := map[string][]Term{}
	for _, t := range triples {
		idx.bumpPredFreq(t.Predicate.Value)
		idx.discoverNamespace(t.Subject)
		idx.discoverNamespace(t.Predicate)
		idx.discoverNamespace(t.Object)

		switch t.Predicate.Value {
		case rdfType:
			switch t.Object.Value {
			case owlClass:
				idx.addClass(t.Subject.Value)
			case owlObjectProp, owlDataProp, owlAnnProp:
				idx.addProperty(t.Subject.Value)
			}
		case rdfsSubClass:
			idx.addClass(t.Subject.Value)
			if t.Object.IsIRI() {
				idx.addClass(t.Object.Value)
				idx.addEdge(idx.Subs, t.Object.Value, t.Subject.Value)
				idx.addEdge(idx.Supers, t.Subject.Value, t.Object.Value)
			}
		case rdfsSubProp:
			idx.addProperty(t.Subject.Value)
			if t.Object.IsIRI() {
				idx.addProperty(t.Object.Value)
			}
		case rdfsDomain:
			idx.addProperty(t.Subject.Value)
			if t.Object.IsIRI() {
				idx.addClass(t.Object.Value)
				idx.addEdge(idx.Doms, t.Subject.Value, t.Object.Value)
			} else {
				idx.Warnings = append(idx.Warnings, fmt.Sprintf("rdfs:domain object is not an IRI for %s", t.Subject.Value))
			}
		case rdfsRange:
			idx.addProperty(t.Subject.Value)
			if t.Object.IsIRI() {
				idx.addClass(t.Object.Value)
				idx.addEdge(idx.Rngs, t.Subject.Value, t.Object.Value)
			} else {
				idx.Warnings = append(idx.Warnings, fmt.Sprintf("rdfs:range object is not an IRI for %s", t.Subject.Value))
			}
		case rdfsLabel:
			if t.Object.Kind == KindLiteral {
				labelCandidates[t.Subject.Value] = append(labelCandidates[t.Subject.Value], t.Object)
			}
		case rdfsComment:
			if t.Object.Kind == KindLiteral {
				if _, exists := idx.Comments[t.Subject.Value]; !exists {
					idx.Comments[t.Subject.Value] = t.Object.Value
				}
			}
		}
	}

	for iri, cands := range labelCandidates {
		if !idx.IsClass(iri) && !idx.IsProperty(iri) {
			continue
		}
		label := pickLabel(cands)
		if label == "" {
			continue
		}
		idx.Labels[iri] = label
		key := strings.ToLower(label)
		idx.ByLabel[key] = append(idx.ByLabel[key], iri)
	}

	if len(idx.ClassOrder) == 0 && len(idx.PropOrder) == 0 {
		return nil, ErrEmptyOntology
	}

	return idx, nil
}

// pickLabel implements spec.md §4.1's preference rule: rdfs:label with
// lang "en" if multiple languages exist; ties broken by shortest label,
// then lexicographic.
func pickLabel(cands []Term) string {
	if len(cands) == 0 {
		return ""
	}
	pool := cands
	hasEN := false
	for _, c := range cands {
		if strings.EqualFold(c.Lang, "en") {
			hasEN = true
			break
		}
	}
	if hasEN {
		var en []Term
		for _, c := range cands {
			if strings.EqualFold(c.Lang, "en") {
				en = append(en, c)
			}
		}
		pool = en
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if len(pool[i].Value) != len(pool[j].Value) {
			return len(pool[i].Value) < len(pool[j].Value)
		}
		return pool[i].Value < pool[j].Value
	})
	return pool[0].Value
}

func (idx *Index) addClass(iri string) {
	if iri == "" {
		return
	}
	if _, ok := idx.classes[iri]; ok {
		return
	}
	idx.classes[iri] = struct{}{}
	idx.ClassOrder = append(idx.ClassOrder, iri)
}

func (idx *Index) addProperty(iri string) {
	if iri == "" {
		return
	}
	if _, ok := idx.properties[iri]; ok {
		return
	}
	idx.properties[iri] = struct{}{}
	idx.PropOrder = append(idx.PropOrder, iri)
}

func (idx *Index) addEdge(m map[string][]string, key, val string) {
	for _, existing := range m[key] {
		if existing == val {
			return
		}
	}
	m[key] = append(m[key], val)
}

func (idx *Index) bumpPredFreq(pred string) {
	if pred == "" {
		return
	}
	if _, ok := idx.PredFreq[pred]; !ok {
		idx.PredOrder = append(idx.PredOrder, pred)
	}
	idx.PredFreq[pred]++
}

func (idx *Index) discoverNamespace(t Term) {
	if t.Kind != KindIRI || t.Value == "" {
		return
	}
	ns, _ := splitIRI(t.Value)
	if ns == "" {
		return
	}
	prefix := guessPrefix(ns)
	idx.addNamespace(prefix, ns)
}

func (idx *Index) addNamespace(prefix, ns string) {
	if prefix == "" || ns == "" {
		return
	}
	if _, ok := idx.Namespaces[prefix]; ok {
		return
	}
	for _, existingNS := range idx.Namespaces {
		if existingNS == ns {
			return
		}
	}
	idx.Namespaces[prefix] = ns
	idx.NSOrder = append(idx.NSOrder, prefix)
}

// splitIRI splits an IRI into its namespace and local name using the last
// '#' or, failing that, the last '/'.
func splitIRI(iri string) (ns, local string) {
	if i := strings.LastIndexByte(iri, '#'); i >= 0 {
		return iri[:i+1], iri[i+1:]
	}
	if i := strings.LastIndexByte(iri, '/'); i >= 0 {
		return iri[:i+1], iri[i+1:]
	}
	return "", iri
}

// guessPrefix derives a short prefix label from a namespace IRI for display
// purposes only (e.g. in summary() and sense cards); it is not a
// substitute for an authored @prefix declaration.
func guessPrefix(ns string) string {
	trimmed := strings.TrimRight(ns, "#/")
	idx := strings.LastIndexAny(trimmed, "/.")
	if idx < 0 || idx+1 >= len(trimmed) {
		return "ns"
	}
	cand := trimmed[idx+1:]
	cand = strings.ToLower(cand)
	if cand == "" {
		return "ns"
	}
	return cand
}

// LocalName returns the local-name part of an IRI (after the last '#' or
// '/'), used by search_entity's localname_substring match tier and by the
// sense-card generator.
func LocalName(iri string) string {
	_, local := splitIRI(iri)
	return local
}

// Summary implements spec.md §4.1's build_index summary(): a short
// deterministic string with triple count, class count, property count, and
// a sorted prefix list.
func (idx *Index) Summary() string {
	prefixes := make([]string, 0, len(idx.Namespaces))
	for p := range idx.Namespaces {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return fmt.Sprintf("triples=%d classes=%d properties=%d prefixes=[%s]",
		idx.TripleCount, len(idx.ClassOrder), len(idx.PropOrder), strings.Join(prefixes, ","))
}
