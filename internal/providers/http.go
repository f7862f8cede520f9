package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"artist-sync/internal/pipeline"
)

// getJSON issues a GET and decodes the JSON body into out, translating HTTP
// failure classes into the pipeline taxonomy. Adapters never retry here;
// retry belongs to the job level.
func getJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: %w", req.URL.Path, err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", pipeline.ErrProviderTransient, err)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code < 300:
		return nil
	case code == http.StatusNotFound:
		return pipeline.ErrProviderNotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("status %d: %w", code, pipeline.ErrProviderTransient)
	default:
		return fmt.Errorf("status %d: %w", code, pipeline.ErrValidation)
	}
}

func withQuery(base string, path string, q url.Values) string {
	if len(q) == 0 {
		return base + path
	}
	return base + path + "?" + q.Encode()
}
