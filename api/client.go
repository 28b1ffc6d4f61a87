/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nskit/nskit/httpclient"
	"github.com/nskit/nskit/log"
	"github.com/nskit/nskit/lrucache"
	"github.com/nskit/nskit/ratelimit"
)

// Session cache bounds. The API expires pins after a period of inactivity
// anyway, so evicted or expired sessions simply re-authenticate with the
// plaintext password on next use.
const (
	authSessionCacheSize = 1024
	authSessionTTL       = 2 * time.Hour
)

// Request types attached to outgoing requests for logging and metrics.
const (
	RequestTypeNation   = "nation"
	RequestTypeRegion   = "region"
	RequestTypeWorld    = "world"
	RequestTypeWA       = "wa"
	RequestTypePrivate  = "private"
	RequestTypeTelegram = "telegram"
	RequestTypeDump     = "dump"
)

// ErrTelegramEndpoint is returned by Do for a=sendTG URLs. Telegram sends carry
// their own pacing floor and must go through SendTelegram.
var ErrTelegramEndpoint = errors.New("telegram requests must go through SendTelegram")

// APIError is returned when the API answers with a non-2xx status that is not
// handled elsewhere in the admission chain.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

// Error is part of error interface implementation.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api request failed: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api request failed: %s", e.Status)
}

func newAPIError(resp *http.Response) *APIError {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    strings.TrimSpace(string(msg)),
	}
}

// ClientOpts provides options for NewClientWithOpts.
type ClientOpts struct {
	// Logger is used for request logging and admission events.
	Logger log.FieldLogger

	// Delegate is the innermost RoundTripper of the built transport chain.
	Delegate http.RoundTripper

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector httpclient.MetricsCollector

	// SessionCacheMetrics collects usage metrics of the per-nation session
	// cache. May be nil.
	SessionCacheMetrics lrucache.MetricsCollector
}

// Client is a typed NationStates API client. All requests pass through one
// shared admission limiter; private shards and telegrams are routed through
// their dedicated wrappers on top of it, so the server-advertised quota stays
// accounted exactly once no matter which surface issued the request.
type Client struct {
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
	tgStandard    *ratelimit.TelegramLimiter
	tgRecruitment *ratelimit.TelegramLimiter

	auth *lrucache.LRUCache[string, *ratelimit.AuthLimiter]
}

// NewClient creates a Client from the passed configuration.
func NewClient(cfg *httpclient.Config) (*Client, error) {
	return NewClientWithOpts(cfg, ClientOpts{})
}

// NewClientWithOpts creates a Client with the specified options.
// A user agent is required; the API operators mandate script identification.
func NewClientWithOpts(cfg *httpclient.Config, opts ClientOpts) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, &httpclient.UserAgentNotSetError{}
	}

	var listener ratelimit.Listener
	if opts.Logger != nil {
		listener = ratelimit.NewLogListener(opts.Logger)
	}

	// The limiter is built here rather than inside httpclient.NewWithOpts
	// because the telegram and auth wrappers need the same base instance.
	var limiter *ratelimit.Limiter
	var err error
	if cfg.RateLimits.Enabled {
		if limiter, err = cfg.RateLimits.MakeLimiter(listener); err != nil {
			return nil, fmt.Errorf("create limiter: %w", err)
		}
	} else {
		// Telegram floors are enforced locally even with quota admission off.
		limiter = ratelimit.NewLimiterWithOpts(ratelimit.Opts{Listener: listener})
	}

	httpClient, err := httpclient.NewWithOpts(cfg, httpclient.Opts{
		Delegate:          opts.Delegate,
		Admission:         limiter,
		Logger:            opts.Logger,
		RequestIDProvider: opts.RequestIDProvider,
		Collector:         opts.Collector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	authCache, err := lrucache.NewWithOpts[string, *ratelimit.AuthLimiter](
		authSessionCacheSize, opts.SessionCacheMetrics, lrucache.Options{DefaultTTL: authSessionTTL})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		tgStandard: ratelimit.NewTelegramLimiterWithOpts(limiter, false,
			ratelimit.TelegramOpts{MinInterval: cfg.Telegrams.MinInterval}),
		tgRecruitment: ratelimit.NewTelegramLimiterWithOpts(limiter, true,
			ratelimit.TelegramOpts{MinInterval: cfg.Telegrams.RecruitmentMinInterval}),
		auth: authCache,
	}, nil
}

// Limiter returns the shared admission limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// AuthFor returns the authenticating limiter for the given credential,
// creating it on first use. Limiters are cached per nation so that
// server-issued session artifacts (autologin token, pin) survive across calls.
// A credential for an already-known nation reuses the cached session.
func (c *Client) AuthFor(cred ratelimit.Credential) *ratelimit.AuthLimiter {
	auth, _ := c.auth.GetOrAdd(NormalizeName(cred.Identity), func() *ratelimit.AuthLimiter {
		return ratelimit.NewAuthLimiter(c.limiter, cred)
	})
	return auth
}

// Do performs a GET request against the passed API URL and returns the decoded
// response tree. The request waits for quota admission before being sent.
func (c *Client) Do(ctx context.Context, u *url.URL) (*Element, error) {
	if strings.EqualFold(u.Query().Get("a"), "sendtg") {
		return nil, ErrTelegramEndpoint
	}

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp)
	}
	return ParseXML(resp.Body)
}

// DoPrivate performs a GET request authenticated as the credential's nation.
// The session cached by AuthFor supplies the headers: the plaintext password on
// first contact, the server-issued autologin token and pin afterwards.
func (c *Client) DoPrivate(ctx context.Context, u *url.URL, cred ratelimit.Credential) (*Element, error) {
	ctx = httpclient.NewContextWithAdmission(ctx, c.AuthFor(cred))
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypePrivate)
	return c.Do(ctx, u)
}

// GetNation requests shards of the named nation.
func (c *Client) GetNation(ctx context.Context, nation string, fragments ...Params) (*Element, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeNation)
	return c.Do(ctx, Nation(nation, fragments...))
}

// GetRegion requests shards of the named region.
func (c *Client) GetRegion(ctx context.Context, region string, fragments ...Params) (*Element, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeRegion)
	return c.Do(ctx, Region(region, fragments...))
}

// GetWorld requests world shards.
func (c *Client) GetWorld(ctx context.Context, fragments ...Params) (*Element, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeWorld)
	return c.Do(ctx, World(fragments...))
}

// GetWA requests World Assembly shards for the given council.
func (c *Client) GetWA(ctx context.Context, council int, fragments ...Params) (*Element, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeWA)
	return c.Do(ctx, WA(council, fragments...))
}

// SendTelegram sends a telegram. The request is paced by the telegram limiter
// matching the recruitment flag in addition to the shared quota, so concurrent
// senders queue against both.
func (c *Client) SendTelegram(ctx context.Context, tg Telegram) error {
	if err := tg.Validate(); err != nil {
		return err
	}

	lim := c.tgStandard
	if tg.Recruitment {
		lim = c.tgRecruitment
	}
	ctx = httpclient.NewContextWithAdmission(ctx, lim)
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeTelegram)

	resp, err := c.get(ctx, tg.URL())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return newAPIError(resp)
	}

	// The telegram endpoint answers with a plain "queued" on success.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return fmt.Errorf("read telegram response: %w", err)
	}
	if !strings.Contains(strings.ToLower(string(body)), "queued") {
		return fmt.Errorf("telegram was not queued: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// Stream opens a gzip-compressed daily dump for reading and returns the
// decompressed stream. The caller owns the returned reader; closing it closes
// the underlying response body as well, on every exit path.
func (c *Client) Stream(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	ctx = httpclient.NewContextWithRequestType(ctx, RequestTypeDump)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("open dump stream: %w", err)
	}
	return &gzipReadCloser{Reader: gz, body: resp.Body}, nil
}

// EachDumpElement streams a daily dump and calls fn for every second-level
// element with the given tag name (NATION for nations dumps, REGION for
// regions dumps) as it is parsed. Elements are not accumulated, so dumps far
// larger than memory can be processed. Returning an error from fn stops the
// iteration and is returned as is.
func (c *Client) EachDumpElement(ctx context.Context, u *url.URL, tag string, fn func(*Element) error) error {
	stream, err := c.Stream(ctx, u)
	if err != nil {
		return err
	}
	defer stream.Close()

	dec := xml.NewDecoder(stream)
	depth := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode dump: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 1 && strings.EqualFold(t.Name.Local, tag) {
				el, err := decodeSubtree(dec, t)
				if err != nil {
					return err
				}
				if err := fn(el); err != nil {
					return err
				}
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
}

func (c *Client) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.httpClient.Do(req)
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cErr := g.body.Close(); err == nil {
		err = cErr
	}
	return err
}
