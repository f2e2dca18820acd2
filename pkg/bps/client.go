// Package bps wraps the BPS bridging API: the getwilayah endpoint that pages
// through the administrative hierarchy and the getperiode catalogue endpoint.
//
// The client applies a browser-shaped header set (the endpoint sits behind a
// BIG-IP front that rejects bare requests), a per-request timeout, and a
// linear-backoff retry loop. Responses are returned loosely typed because the
// upstream payload shapes are not stable across periodes.
package bps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

const (
	// DefaultBaseURL is the bridging endpoint returning wilayah pages.
	DefaultBaseURL = "https://sig.bps.go.id/rest-bridging/getwilayah"
	// DefaultPeriodeURL is the drop-down endpoint listing available periodes.
	DefaultPeriodeURL = "https://sig.bps.go.id/rest-drop-down/getperiode"
)

// baseHeaders is sent with every request, merged with the request-scoped
// cookie. The set mirrors what the sig.bps.go.id frontend sends from a
// browser; trimming it tends to trip the upstream WAF.
var baseHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
	"DNT":             "1",
	"Referer":         "https://sig.bps.go.id/bridging-kode/index",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"X-Requested-With":   "XMLHttpRequest",
	"sec-ch-ua":          `"Not=A?Brand";v="24", "Chromium";v="140"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
}

// Config holds the client settings. Zero values for the URLs fall back to the
// production endpoints; zero retry/timeout values fall back to conservative
// defaults matching the CLI flag defaults.
type Config struct {
	BaseURL    string
	PeriodeURL string
	Cookie     string
	// Periode is the periode_merge value stamped onto wilayah requests. It is
	// usually resolved via SelectPeriode after the client is built and then
	// set once with SetPeriode.
	Periode    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	DryRun     bool
}

// Client issues GET requests against the bridging API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// dryRunOut receives the URL-preview lines in dry-run mode. Defaults to
	// stdout; tests redirect it.
	dryRunOut io.Writer
}

// NewClient builds a client from cfg, filling in endpoint and retry defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PeriodeURL == "" {
		cfg.PeriodeURL = DefaultPeriodeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dryRunOut:  os.Stdout,
	}
}

// BaseURL returns the effective bridging endpoint, for the run manifest.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// DryRun reports whether the client short-circuits network calls.
func (c *Client) DryRun() bool {
	return c.cfg.DryRun
}

// SetPeriode fixes the periode_merge value for all subsequent wilayah
// requests. The periode is selected once per run and never changes afterward.
func (c *Client) SetPeriode(periode string) {
	c.cfg.Periode = periode
}

// SetDryRunOutput redirects the dry-run URL previews, primarily for tests.
func (c *Client) SetDryRunOutput(w io.Writer) {
	c.dryRunOut = w
}

// FetchWilayah requests one page of the hierarchy: all children of parent at
// the given level. The parent code is empty for the province level. Items are
// returned as loose maps; key normalization happens in the crawler.
//
// Non-200 responses are retried with linear backoff (RetryDelay * attempt) up
// to MaxRetries attempts; exhaustion is a terminal error. A malformed JSON
// body is terminal immediately, without retry.
func (c *Client) FetchWilayah(ctx context.Context, level wilayah.Level, parent string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("level", string(level))
	params.Set("parent", parent)
	params.Set("periode_merge", c.cfg.Periode)

	if c.cfg.DryRun {
		fmt.Fprintf(c.dryRunOut, "DRY-RUN: would request %s?%s\n", c.cfg.BaseURL, params.Encode())
		return nil, nil
	}

	body, err := c.get(ctx, c.cfg.BaseURL, params, fmt.Sprintf("level=%s parent=%s", level, orDash(parent)))
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, errors.Wrapf(err, "invalid JSON for level=%s parent=%s", level, orDash(parent))
	}
	slog.Debug("received wilayah page", "level", level, "parent", orDash(parent), "records", len(items))
	return items, nil
}

// FetchPeriodes requests the periode catalogue. The payload shape varies
// (bare array, wrapped object), so the raw decoded value is returned and
// ExtractPeriodes normalizes it.
func (c *Client) FetchPeriodes(ctx context.Context) (any, error) {
	if c.cfg.DryRun {
		fmt.Fprintf(c.dryRunOut, "DRY-RUN: would request %s for periodes\n", c.cfg.PeriodeURL)
		return nil, nil
	}

	body, err := c.get(ctx, c.cfg.PeriodeURL, nil, "periode catalogue")
	if err != nil {
		return nil, err
	}

	var payload any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "invalid JSON from periode endpoint")
	}
	return payload, nil
}

// get runs the retry loop around a single GET. Transport errors and non-200
// statuses both count as transient; each failed attempt sleeps
// RetryDelay * attempt before the next one.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values, what string) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		slog.Debug("requesting", "what", what, "attempt", attempt)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "build request for %s", what)
		}
		for key, value := range baseHeaders {
			req.Header.Set(key, value)
		}
		if c.cfg.Cookie != "" {
			req.Header.Set("Cookie", c.cfg.Cookie)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			slog.Debug("request failed", "what", what, "error", err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				if readErr != nil {
					return nil, errors.Wrapf(readErr, "read response for %s", what)
				}
				return body, nil
			}
			lastErr = errors.Errorf("HTTP %d", resp.StatusCode)
			slog.Debug("non-200 response", "what", what, "status", resp.StatusCode)
		}

		if attempt < c.cfg.MaxRetries {
			if err := sleep(ctx, c.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to fetch %s after %d attempts", what, c.cfg.MaxRetries)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orDash(parent string) string {
	if parent == "" {
		return "-"
	}
	return parent
}
