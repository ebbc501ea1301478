package exec

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/nbaghiro/flowmaestro/workflow"
)

// maxResponseBytes caps how much of an HTTP response body is read into the
// execution context.
const maxResponseBytes = 10 << 20 // 10 MiB

// handleHTTP performs one HTTP request.
//
// Config:
//   - url: target URL (required)
//   - method: GET, POST, PUT, PATCH, DELETE; defaults to GET
//   - headers: mapping of header name to value
//   - body: request body string
//
// Output: statusCode, headers, body, and content (alias of body so empty
// responses activate fallback edges).
func (r *Registry) handleHTTP(ctx context.Context, req Request) workflow.Result {
	urlStr, _ := req.Config["url"].(string)
	if urlStr == "" {
		return failf("http %s: url is required", req.Meta.NodeID)
	}

	method := http.MethodGet
	if m, ok := req.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return failf("http %s: unsupported method %s", req.Meta.NodeID, method)
	}

	var body io.Reader
	if bodyStr, ok := req.Config["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return failf("http %s: build request: %v", req.Meta.NodeID, err)
	}
	if headers, ok := req.Config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				httpReq.Header.Set(key, s)
			}
		}
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return failf("http %s: %v", req.Meta.NodeID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failf("http %s: read response: %v", req.Meta.NodeID, err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	result := workflow.Result{
		Success: resp.StatusCode < 500,
		Output: map[string]any{
			"statusCode": resp.StatusCode,
			"headers":    respHeaders,
			"body":       string(respBody),
			"content":    string(respBody),
		},
	}
	if !result.Success {
		result.Error = "http " + req.Meta.NodeID + ": server returned " + resp.Status
	}
	return result
}
