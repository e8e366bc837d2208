package funrun

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// FetchRequest is the subset of the JS fetch() call shape the bridge
// understands: a URL, method, headers, and an optional body.
type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// FetchResponse is what comes back across the bridge into JS.
type FetchResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// FetchClient performs the actual network call for fetch(), isolated
// behind an interface so tests can substitute a fake and so the real
// implementation honors request-level timeouts per §5's cancellation
// rules ("fetch client honors request-level timeouts").
type FetchClient interface {
	Do(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// HTTPFetchClient is the real, network-backed FetchClient used outside
// tests.
type HTTPFetchClient struct {
	Client *http.Client
}

func (c HTTPFetchClient) Do(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return FetchResponse{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return FetchResponse{}, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResponse{}, err
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return FetchResponse{Status: resp.StatusCode, Headers: headers, Body: respBody}, nil
}
