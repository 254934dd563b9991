// Package probe reduces endpoint health to a boolean and aggregates tool and
// model metadata from healthy endpoints.
package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/localmcp/localmcp/internal/registry"
)

// DefaultTimeout bounds one probe round-trip. One unreachable endpoint may
// cost at most this long per cycle.
const DefaultTimeout = 2 * time.Second

// Tool is a tool descriptor as served by an adapter. Fetched verbatim and
// never validated locally; the schema is owned by the remote service.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolsResponse struct {
	Tools []Tool `json:"tools"`
}

// Status is one entry's probe outcome, shaped for the status API.
type Status struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
}

// Prober checks endpoint health. The HTTP client is injected so tests can
// substitute transports instead of patching process-wide state.
type Prober struct {
	client *http.Client
}

// New returns a Prober whose requests time out after timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: newHTTPClient(timeout)}
}

// NewWithClient returns a Prober using the given client.
func NewWithClient(client *http.Client) *Prober {
	return &Prober{client: client}
}

// Probe issues one GET to {url}/health and returns true only on HTTP 200.
// Timeout, connection refused, DNS failure, and non-200 statuses all collapse
// to false. No retries: a failure is sampled once per cycle and self-corrects
// on the next one. The reason is kept at debug level only.
func (p *Prober) Probe(ctx context.Context, e registry.Entry) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", e.URL+"/health", nil)
	if err != nil {
		slog.Debug("probe: bad URL", slog.String("name", e.Name), slog.Any("error", err))
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("probe: unreachable", slog.String("name", e.Name), slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("probe: unhealthy status",
			slog.String("name", e.Name),
			slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// ProbeAll probes entries concurrently and returns one Status per entry in
// input order.
func (p *Prober) ProbeAll(ctx context.Context, entries []registry.Entry) []Status {
	results := make([]Status, len(entries))
	var wg sync.WaitGroup

	for i, e := range entries {
		wg.Add(1)
		go func(idx int, entry registry.Entry) {
			defer wg.Done()
			results[idx] = Status{
				Name:    entry.Name,
				URL:     entry.URL,
				Healthy: p.Probe(ctx, entry),
			}
		}(i, e)
	}
	wg.Wait()
	return results
}

// FetchTools returns the tool descriptors a service serves at /mcp/tools, or
// nil when the fetch fails for any reason. Only call it for entries whose
// probe succeeded.
func (p *Prober) FetchTools(ctx context.Context, e registry.Entry) []Tool {
	var out toolsResponse
	if err := p.getJSON(ctx, e.URL+"/mcp/tools", &out); err != nil {
		slog.Debug("fetch tools failed", slog.String("name", e.Name), slog.Any("error", err))
		return nil
	}
	return out.Tools
}

// FetchModelInfo returns a model server's /model_info payload as-is, or nil
// when the fetch fails. Only call it for entries whose probe succeeded.
func (p *Prober) FetchModelInfo(ctx context.Context, e registry.Entry) map[string]any {
	var out map[string]any
	if err := p.getJSON(ctx, e.URL+"/model_info", &out); err != nil {
		slog.Debug("fetch model info failed", slog.String("name", e.Name), slog.Any("error", err))
		return nil
	}
	return out
}

func (p *Prober) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// newHTTPClient creates an HTTP client with TLS verification, a redirect
// limit, and the given timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: false},
		},
	}
}
