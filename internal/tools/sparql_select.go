package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSelectLimit = 100
	hardLimitCeiling   = 1000
)

var limitClauseRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)

// SparqlSelectTool implements spec.md §4.2.2 over an Endpoint collaborator.
type SparqlSelectTool struct {
	Endpoint Endpoint
	Timeout  time.Duration
}

func (t *SparqlSelectTool) Describe() Spec {
	return Spec{
		Description: "Execute a SELECT-only SPARQL query against the configured endpoint.",
		Parameters: map[string]any{
			"query": "string, required, must be a SELECT query",
		},
	}
}

func (t *SparqlSelectTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	return SparqlSelect(ctx, t.Endpoint, query, t.Timeout)
}

// SparqlSelect is the pure function backing SparqlSelectTool.Execute.
func SparqlSelect(ctx context.Context, endpoint Endpoint, query string, timeout time.Duration) ([]map[string]string, error) {
	dispatchQuery, err := prepareSelectQuery(query)
	if err != nil {
		return nil, err
	}

	rows, err := endpoint.Select(ctx, dispatchQuery, timeout)
	if err != nil {
		var epErr *EndpointError
		if asEndpointError(err, &epErr) {
			return nil, fmt.Errorf("%w [%s]: %s", ErrSparqlExecution, epErr.Category, epErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrSparqlExecution, err)
	}
	return rows, nil
}

func asEndpointError(err error, target **EndpointError) bool {
	if ep, ok := err.(*EndpointError); ok {
		*target = ep
		return true
	}
	return false
}

// prepareSelectQuery enforces SELECT-only dispatch and LIMIT clamping per
// spec.md §4.2.2: the first non-comment, non-PREFIX/BASE keyword must be
// SELECT; a missing LIMIT gets "LIMIT 100" appended; an explicit LIMIT
// above 1000 fails with LimitExceeded; an explicit LIMIT at or below 1000
// is dispatched unchanged.
func prepareSelectQuery(query string) (string, error) {
	if err := requireSelect(query); err != nil {
		return "", err
	}

	if m := limitClauseRe.FindStringSubmatch(query); m != nil {
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			return "", fmt.Errorf("%w: unparseable LIMIT clause", ErrSparqlExecution)
		}
		if n > hardLimitCeiling {
			return "", fmt.Errorf("%w: LIMIT %d exceeds ceiling of %d", ErrLimitExceeded, n, hardLimitCeiling)
		}
		return query, nil
	}

	trimmed := strings.TrimRight(query, " \t\n\r")
	return trimmed + fmt.Sprintf("\nLIMIT %d", defaultSelectLimit), nil
}

// requireSelect walks past comment lines and PREFIX/BASE declarations to
// find the first real keyword; it must be SELECT.
func requireSelect(query string) error {
	lines := strings.Split(query, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		upper := strings.ToUpper(trimmed)
		if strings.HasPrefix(upper, "PREFIX") || strings.HasPrefix(upper, "BASE") {
			continue
		}
		if strings.HasPrefix(upper, "SELECT") {
			return nil
		}
		return fmt.Errorf("%w: query does not begin with SELECT", ErrUnsupportedQueryKind)
	}
	return fmt.Errorf("%w: empty query", ErrUnsupportedQueryKind)
}
