// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/datfetch/pkg/types"
)

// Browser-like header values. The file server answers default Go client
// identifiers with errors, so every request carries these unless the
// configuration overrides them.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
)

// NewRequest builds a request with the configured User-Agent and Accept
// headers, falling back to the browser defaults.
func NewRequest(ctx context.Context, method, url string, cfg types.HTTPConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	accept := cfg.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", accept)
	return req, nil
}

// DrainClose discards the rest of the body and closes it so the connection
// can be reused.
func DrainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// IsSuccess reports whether the status code is 2xx.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
