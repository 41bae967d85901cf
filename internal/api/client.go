// Package api is the request/response side of the chat service.
package api

import (
	"chatsync/internal/metrics"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://slack.com/api/"

// TokenSource supplies the credential for each call. An empty token means none is held.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type Options struct {
	BaseURL           string
	RPS               float64
	Burst             int
	HistoryCacheBytes int

	// Retries applies to reads only. Writes such as chat.postMessage are sent once.
	Retries   int
	RetryWait time.Duration
	Timeout   time.Duration

	HTTPClient *http.Client
}

type Client struct {
	sugar    *zap.SugaredLogger
	rest     *resty.Client
	tokens   TokenSource
	limiters *limiterPool
	history  *freecache.Cache
	metrics  metrics.Recorder
}

type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func New(sugar *zap.SugaredLogger, tokens TokenSource, opts Options, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.Noop()
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	rest := resty.New()
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	}
	rest.
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetLogger(sugar).
		SetRetryCount(max(opts.Retries, 0)).
		AddRetryCondition(retryRead)
	if opts.RetryWait > 0 {
		rest.SetRetryWaitTime(opts.RetryWait).SetRetryMaxWaitTime(8 * opts.RetryWait)
	}
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}
	rest.JSONMarshal = json.Marshal
	rest.JSONUnmarshal = json.Unmarshal

	c := &Client{
		sugar:    sugar,
		rest:     rest,
		tokens:   tokens,
		limiters: newLimiterPool(opts.RPS, opts.Burst),
		metrics:  recorder,
	}
	if opts.HistoryCacheBytes > 0 {
		c.history = freecache.NewCache(opts.HistoryCacheBytes)
	}
	return c
}

// retryRead retries GETs on connection errors, 429 and 5xx replies.
func retryRead(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(r.Request.Context(), r.RawResponse, err)
	return retry
}

// Call performs a GET with params and the token in the query string and decodes
// the body into out when out is not nil.
func (c *Client) Call(ctx context.Context, method string, params map[string]string, out any) error {
	values, err := c.values(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return c.do(ctx, method, out, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParams(values).Get(method)
	})
}

// Post sends params and the token as a form body.
func (c *Client) Post(ctx context.Context, method string, params map[string]string, out any) error {
	values, err := c.values(params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return c.do(ctx, method, out, func(req *resty.Request) (*resty.Response, error) {
		return req.SetFormData(values).Post(method)
	})
}

func (c *Client) values(params map[string]string) (map[string]string, error) {
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		return nil, ErrNoCredential
	}

	values := make(map[string]string, len(params)+1)
	for k, v := range params {
		values[k] = v
	}
	values["token"] = token
	return values, nil
}

func (c *Client) do(ctx context.Context, method string, out any, send func(*resty.Request) (*resty.Response, error)) error {
	if err := c.limiters.get(method).Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	start := time.Now()
	resp, err := send(c.rest.R().SetContext(ctx))
	body, err := check(method, resp, err)
	if err != nil {
		c.metrics.ObserveAPICall(method, "error", time.Since(start))
		c.sugar.Debugf("Call to [%s] failed: %v", method, err)
		return err
	}
	c.metrics.ObserveAPICall(method, "ok", time.Since(start))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	return nil
}

// check maps transport failures, non-2xx replies and ok:false bodies to errors.
func check(method string, resp *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	body := resp.Body()

	if !resp.IsSuccess() {
		var env envelope
		_ = json.Unmarshal(body, &env)
		return nil, &Error{Method: method, Status: resp.StatusCode(), Code: env.Error}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if !env.OK {
		return nil, &Error{Method: method, Status: resp.StatusCode(), Code: env.Error}
	}
	return body, nil
}
