package ontology

import "errors"

// ErrOntologyParse and ErrEmptyOntology are the two C1 failure modes
// spec.md §4.1 names; both are fatal to the run (the engine is never
// entered — spec.md §7).
var (
	ErrOntologyParse = errors.New("ontology parse error")
	ErrEmptyOntology = errors.New("empty ontology: no classes and no properties discovered")
)
