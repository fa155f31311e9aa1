// Package webfetch downloads small documents such as SKILL.md files.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultMaxBytes = 1 << 20

var ErrTooLarge = errors.New("response body too large")

var client = &http.Client{Timeout: 30 * time.Second}

// Fetch GETs an http or https url and returns its body. Bodies longer
// than maxBytes fail with ErrTooLarge; 0 means DefaultMaxBytes. Non-200
// responses are returned with their status and body, not as errors.
func Fetch(ctx context.Context, urlStr string, maxBytes int) (statusCode int, headers http.Header, body []byte, err error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	u, err := url.Parse(urlStr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0, nil, nil, fmt.Errorf("invalid url: %q", urlStr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return 0, nil, nil, err
	}
	if len(body) > maxBytes {
		return resp.StatusCode, resp.Header.Clone(), nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, urlStr, maxBytes)
	}
	return resp.StatusCode, resp.Header.Clone(), body, nil
}
