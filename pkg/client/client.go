package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every /player and /control request
	DefaultTimeout = 10 * time.Second

	// DefaultDownloadTimeout bounds a single asset download
	DefaultDownloadTimeout = 5 * time.Minute

	EndpointPlayer  = "/player"
	EndpointControl = "/control"

	userAgent = "kiosksync/1.0"
)

var (
	// ErrTimeout means the request exceeded its deadline
	ErrTimeout = errors.New("request timed out")

	// ErrTransport means the server could not be reached (refused, DNS, TLS)
	ErrTransport = errors.New("transport failure")

	// ErrDecode means the response body was not the expected JSON document
	ErrDecode = errors.New("invalid response body")
)

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsUnreachable reports whether err means the server could not be reached
// at all, as opposed to answering badly.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}

// Config holds client configuration
type Config struct {
	ServerURL       string
	DeploymentID    string
	Password        string
	Timeout         time.Duration
	DownloadTimeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Client talks to the content server
type Client struct {
	baseURL         *url.URL
	deploymentID    string
	password        string
	timeout         time.Duration
	downloadTimeout time.Duration
	httpClient      *http.Client
	logger          zerolog.Logger
}

// NewClient creates a new content server client
func NewClient(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", cfg.ServerURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server URL %q must be absolute", cfg.ServerURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:         base,
		deploymentID:    cfg.DeploymentID,
		password:        cfg.Password,
		timeout:         timeout,
		downloadTimeout: downloadTimeout,
		httpClient:      httpClient,
		logger:          log.WithComponent("client"),
	}, nil
}

// Fetch performs an authenticated GET of endpoint and decodes the JSON body
// into v. The raw body is returned so callers can persist it verbatim.
func (c *Client) Fetch(ctx context.Context, endpoint string, v any) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FetchDuration, endpoint)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.endpointURL(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	// reqURL carries the password; log the bare endpoint only
	c.logger.Debug().Str("endpoint", endpoint).Msg("Fetching")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(endpoint, err)
	}

	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
		}
	}

	return body, nil
}

// FetchManifest fetches the /player playlist
func (c *Client) FetchManifest(ctx context.Context) (*types.Manifest, []byte, error) {
	body, err := c.Fetch(ctx, EndpointPlayer, nil)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := types.DecodeManifest(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrDecode, EndpointPlayer, err)
	}

	return manifest, body, nil
}

// FetchControl fetches the /control heartbeat
func (c *Client) FetchControl(ctx context.Context) (*types.ControlResponse, error) {
	var resp types.ControlResponse
	if _, err := c.Fetch(ctx, EndpointControl, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveURL turns an asset source into an absolute URL. Relative sources
// resolve against the server base URL.
func (c *Client) ResolveURL(source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("asset has no source")
	}
	ref, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid asset source %q: %w", source, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Download opens the body of an asset. The caller must close the returned
// reader; the download deadline covers reading the body.
func (c *Client) Download(ctx context.Context, source string) (io.ReadCloser, error) {
	assetURL, err := c.ResolveURL(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, classify(assetURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: assetURL, StatusCode: resp.StatusCode}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, url: assetURL}, nil
}

func (c *Client) endpointURL(endpoint string) *url.URL {
	u := c.baseURL.JoinPath(endpoint)
	q := u.Query()
	q.Set("deployment_id", c.deploymentID)
	q.Set("password", c.password)
	u.RawQuery = q.Encode()
	return u
}

func classify(target string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: GET %s: %v", ErrTimeout, target, err)
	}
	return fmt.Errorf("%w: GET %s: %v", ErrTransport, target, err)
}

// cancelOnClose releases the download deadline once the body is consumed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	url    string
}

func (r *cancelOnClose) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = classify(r.url, err)
	}
	return n, err
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
