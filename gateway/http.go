package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ticketing/entity"
)

// NewHTTPClient returns a traced client. timeout bounds every remote call; there are no retries.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type unexpectedStatusError struct {
	StatusCode int
	Body       string
}

func (e unexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

type jsonClient struct {
	baseURL    string
	httpClient *http.Client
}

func newJSONClient(baseURL string, httpClient *http.Client) jsonClient {
	if baseURL == "" {
		panic("missing base url")
	}
	if httpClient == nil {
		panic("missing http client")
	}

	return jsonClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// do sends the request and decodes the response into out when the status is one of okStatuses.
// Transport failures and 5xx responses are reported as entity.ErrRemoteUnavailable.
func (c jsonClient) do(
	ctx context.Context,
	method string,
	path string,
	in any,
	out any,
	okStatuses ...int,
) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("could not marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if correlationID := log.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", entity.ErrRemoteUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	for _, status := range okStatuses {
		if resp.StatusCode != status {
			continue
		}
		if out == nil {
			return resp.StatusCode, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("%w: could not decode %s %s response: %v", entity.ErrRemoteUnavailable, method, path, err)
		}
		return resp.StatusCode, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	statusErr := unexpectedStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %v", entity.ErrNotFound, method, path, statusErr)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %v", entity.ErrRemoteUnavailable, method, path, statusErr)
	default:
		return resp.StatusCode, fmt.Errorf("%s %s: %w", method, path, statusErr)
	}
}
