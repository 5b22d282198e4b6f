package tools

import "errors"

// The error kinds spec.md §4.2/§7 assigns to C2. All are converted to
// in-band observations for the LM — never to a stopped loop.
var (
	ErrUnsupportedQueryKind = errors.New("UnsupportedQueryKind")
	ErrLimitExceeded        = errors.New("LimitExceeded")
	ErrSparqlExecution      = errors.New("SparqlExecutionError")
)
