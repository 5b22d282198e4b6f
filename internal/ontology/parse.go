package ontology

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/deiu/rdf2go"
	"github.com/knakk/rdf"
)

// Format names the canonical RDF serializations spec.md §6 maps by
// extension: .ttl -> turtle, .nt -> ntriples, .nq -> nquads, .trig -> trig,
// .rdf/.xml -> rdfxml, .jsonld -> jsonld. .ttl is always turtle, never trig.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatNQuads   Format = "nquads"
	FormatRDFXML   Format = "rdfxml"
	FormatTriG     Format = "trig"
	FormatJSONLD   Format = "jsonld"
)

// FormatFromExtension implements the canonical extension table.
func FormatFromExtension(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ttl":
		return FormatTurtle, nil
	case ".nt":
		return FormatNTriples, nil
	case ".nq":
		return FormatNQuads, nil
	case ".trig":
		return FormatTriG, nil
	case ".rdf", ".xml":
		return FormatRDFXML, nil
	case ".jsonld":
		return FormatJSONLD, nil
	default:
		return "", fmt.Errorf("%w: unrecognized extension %q", ErrOntologyParse, ext)
	}
}

// parseFile reads path, dispatches on its format, and returns a flat list
// of normalized triples. Turtle/N-Triples/RDF-XML/N-Quads go through
// knakk/rdf's streaming TripleDecoder; TriG and JSON-LD (which knakk/rdf
// does not decode) go through rdf2go's graph parser.
func parseFile(path string) ([]Triple, []string, error) {
	format, err := FormatFromExtension(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOntologyParse, err)
	}
	defer f.Close()

	switch format {
	case FormatTurtle, FormatNTriples, FormatRDFXML, FormatNQuads:
		return parseWithKnakk(f, format)
	case FormatTriG, FormatJSONLD:
		return parseWithRDF2Go(f, format)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported format %q", ErrOntologyParse, format)
	}
}

func knakkFormat(f Format) rdf.Format {
	switch f {
	case FormatNTriples:
		return rdf.NTriples
	case FormatRDFXML:
		return rdf.RDFXML
	case FormatNQuads:
		return rdf.NQuads
	default:
		return rdf.Turtle
	}
}

func parseWithKnakk(r io.Reader, format Format) ([]Triple, []string, error) {
	dec := rdf.NewTripleDecoder(r, knakkFormat(format))
	var triples []Triple
	var warnings []string
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrOntologyParse, err)
		}
		triples = append(triples, Triple{
			Subject:   termFromKnakk(tr.Subj),
			Predicate: termFromKnakk(tr.Pred),
			Object:    termFromKnakk(tr.Obj),
		})
	}
	return triples, warnings, nil
}

func termFromKnakk(t rdf.Term) Term {
	switch v := t.(type) {
	case rdf.Literal:
		dt := ""
		if v.DataType.Full() != "" {
			dt = v.DataType.Full()
		}
		return Term{Kind: KindLiteral, Value: v.String(), Lang: v.Lang, Datatype: dt}
	case rdf.Blank:
		return Term{Kind: KindBlank, Value: v.String()}
	default:
		return Term{Kind: KindIRI, Value: t.String()}
	}
}

func parseWithRDF2Go(r io.Reader, format Format) ([]Triple, []string, error) {
	mime := "application/trig"
	if format == FormatJSONLD {
		mime = "application/ld+json"
	}
	g := rdf2go.NewGraph("")
	if err := g.Parse(r, mime); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOntologyParse, err)
	}

	var triples []Triple
	var warnings []string
	ch := g.IterTriples()
	for tr := range ch {
		triples = append(triples, Triple{
			Subject:   termFromRDF2Go(tr.Subject),
			Predicate: termFromRDF2Go(tr.Predicate),
			Object:    termFromRDF2Go(tr.Object),
		})
	}
	return triples, warnings, nil
}

func termFromRDF2Go(t rdf2go.Term) Term {
	switch v := t.(type) {
	case *rdf2go.Literal:
		dt := ""
		if v.Datatype != nil {
			dt = v.Datatype.RawValue()
		}
		return Term{Kind: KindLiteral, Value: v.Value, Lang: v.Language, Datatype: dt}
	case *rdf2go.BlankNode:
		return Term{Kind: KindBlank, Value: v.ID}
	default:
		return Term{Kind: KindIRI, Value: t.RawValue()}
	}
}
