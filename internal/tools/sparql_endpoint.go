package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoint is the abstract SPARQL 1.1 collaborator spec.md §6 names:
// Endpoint.select(query, timeout_s) -> [{var: str_value}], with row order
// preserved and errors typed (Timeout, SyntaxError, NetworkError,
// ProviderError).
type Endpoint interface {
	Select(ctx context.Context, query string, timeout time.Duration) ([]map[string]string, error)
}

// EndpointErrorCategory is the typed error category C2 preserves when it
// wraps an endpoint failure as SparqlExecutionError.
type EndpointErrorCategory string

const (
	CategoryTimeout EndpointErrorCategory = "Timeout"
	CategorySyntax  EndpointErrorCategory = "SyntaxError"
	CategoryNetwork EndpointErrorCategory = "NetworkError"
	CategoryProvider EndpointErrorCategory = "ProviderError"
)

// EndpointError carries the typed category alongside the provider's raw
// message.
type EndpointError struct {
	Category EndpointErrorCategory
	Message  string
}

func (e *EndpointError) Error() string { return fmt.Sprintf("%s: %s", e.Category, e.Message) }

// HTTPEndpoint is a thin net/http SPARQL 1.1 protocol client: POST
// form-encoded query=, Accept: application/sparql-results+json. This is
// the one deliberate stdlib-justified component in the domain stack
// (SPEC_FULL.md §B) — the protocol itself is a two-page POST+JSON
// round-trip with no ecosystem client closer to the wire contract than
// net/http.
type HTTPEndpoint struct {
	URL    string
	Client *http.Client
}

func NewHTTPEndpoint(endpointURL string, client *http.Client) *HTTPEndpoint {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEndpoint{URL: endpointURL, Client: client}
}

func (e *HTTPEndpoint) Select(ctx context.Context, query string, timeout time.Duration) ([]map[string]string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &EndpointError{Category: CategoryNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := e.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &EndpointError{Category: CategoryTimeout, Message: err.Error()}
		}
		return nil, &EndpointError{Category: CategoryNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		body := readAll(resp)
		return nil, &EndpointError{Category: CategorySyntax, Message: body}
	}
	if resp.StatusCode >= 400 {
		body := readAll(resp)
		return nil, &EndpointError{Category: CategoryProvider, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}

	var parsed sparqlResultsJSON
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &EndpointError{Category: CategoryProvider, Message: "invalid sparql-results+json: " + err.Error()}
	}

	rows := make([]map[string]string, 0, len(parsed.Results.Bindings))
	for _, binding := range parsed.Results.Bindings {
		row := make(map[string]string, len(binding))
		for k, v := range binding {
			row[k] = v.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type sparqlResultsJSON struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]sparqlBindingValue `json:"bindings"`
	} `json:"results"`
}

type sparqlBindingValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	DataType string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

func readAll(resp *http.Response) string {
	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}
