// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/wneessen/traccar-agent/internal/logger"
)

const (
	// DefaultTimeout is the default timeout value for the HTTPClient
	DefaultTimeout = time.Second * 10

	// maxDrainBytes limits how much of a response body is read before closing it
	maxDrainBytes = 64 << 10
)

var (
	// version is the version of the application (will be set at build time)
	version = "dev"
	// UserAgent is the User-Agent that the HTTP client sends with requests
	UserAgent = fmt.Sprintf("traccar-agent/%s (%s; %s; +https://github.com/wneessen/traccar-agent/)",
		version,
		runtime.GOOS,
		runtime.GOARCH,
	)
)

// Client is a type wrapper for the Go stdlib http.Client
type Client struct {
	*http.Client
	logger *logger.Logger
}

// New returns a new HTTP client
func New(logger *logger.Logger) *Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	httpTransport := &http.Transport{TLSClientConfig: tlsConfig}
	// No client-wide timeout, requests are bounded by their context
	httpClient := &http.Client{Transport: httpTransport}
	return &Client{httpClient, logger}
}

// Get performs a HTTP GET request for the given URL and returns the response status code.
// The response body is discarded. A deadline already set on ctx is honored as is, otherwise
// DefaultTimeout applies.
func (h *Client) Get(ctx context.Context, endpoint string, query url.Values, headers map[string]string) (int, error) {
	if _, ok := ctx.Deadline(); ok {
		return h.get(ctx, endpoint, query, headers)
	}
	return h.GetWithTimeout(ctx, endpoint, query, headers, DefaultTimeout)
}

// GetWithTimeout performs a HTTP GET request for the given URL and timeout and returns the
// response status code. The response body is discarded.
func (h *Client) GetWithTimeout(ctx context.Context, endpoint string, query url.Values, headers map[string]string,
	timeout time.Duration,
) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return h.get(ctx, endpoint, query, headers)
}

func (h *Client) get(ctx context.Context, endpoint string, query url.Values, headers map[string]string) (int, error) {
	// Prepare URL and query parameters. Parameters already present in the endpoint are kept.
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		values := reqURL.Query()
		for k, v := range query {
			values[k] = v
		}
		reqURL.RawQuery = values.Encode()
	}

	// Prepare HTTP request
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	// Execute HTTP request
	response, err := h.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
		if err := body.Close(); err != nil {
			h.logger.Error("failed to close HTTP response body", logger.Err(err))
		}
	}(response.Body)

	return response.StatusCode, nil
}
