package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public presence watcher endpoint. The user ID is
// appended as the final path segment.
const DefaultBaseURL = "https://api.lagden.dev/v1/watcher"

// maxResponseBytes caps a single presence payload.
const maxResponseBytes = 1 << 20

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// ClientOptions configures [NewClient]. Zero values select defaults.
type ClientOptions struct {
	// BaseURL is the watcher endpoint; defaults to [DefaultBaseURL].
	BaseURL string
	// Timeout bounds a single request. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
	// RetryMax is the number of transport-level retries. The poller's next
	// tick is the normal retry path, so this is usually 0.
	RetryMax int
	// HTTPClient replaces the pooled transport, mainly for tests.
	HTTPClient *http.Client
	// Logger receives retryablehttp's request logs; nil silences them.
	Logger *slog.Logger
}

// Client fetches raw presence payloads.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *retryablehttp.Client
}

// NewClient builds a Client around a retryablehttp client whose error
// handler passes the final response through, so status classification
// happens here rather than inside the retry loop.
func NewClient(opts ClientOptions) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	} else {
		rc.Logger = nil
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		timeout: opts.Timeout,
		http:    rc,
	}
}

// URL returns the request URL for userID.
func (c *Client) URL(userID string) string {
	return c.baseURL + "/" + url.PathEscape(userID)
}

// Fetch performs one uncached GET for userID.
//
// Errors are classified with the package sentinels: [ErrNotConfigured] for an
// empty userID, [ErrCancelled] when ctx ends before the response is read,
// [ErrNetwork] for transport failures, timeouts, and non-2xx statuses, and
// [ErrParse] for bodies that are not a successful watcher payload.
func (c *Client) Fetch(ctx context.Context, userID string) (*Response, error) {
	if userID == "" {
		return nil, ErrNotConfigured
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.URL(userID)
	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("%w: GET %s: %w", ErrNetwork, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrNetwork, target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("%w: reading response: %w", ErrNetwork, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrParse, maxResponseBytes)
	}
	return decodeResponse(body)
}

// decodeResponse unmarshals a watcher payload and rejects unsuccessful ones.
func decodeResponse(body []byte) (*Response, error) {
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: field %s: %w", ErrParse, typeErr.Field, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("%w: watcher reported ok=false", ErrParse)
	}
	if out.PresenceData == nil {
		return nil, fmt.Errorf("%w: missing presence_data", ErrParse)
	}
	return &out, nil
}
