package types

import (
	"context"
	"net/url"
)

type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPClient issues one-shot outbound requests; it never retries.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*HTTPResponse, error)
	PostForm(ctx context.Context, url string, form url.Values, headers map[string]string) (*HTTPResponse, error)
}
