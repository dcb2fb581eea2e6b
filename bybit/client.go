// Package bybit is a signed client for the Bybit v5 REST API. It implements
// executor.Gateway and the instrument lookup.
package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/types"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

// Client talks to one Bybit account. It is safe for concurrent use.
type Client struct {
	http        *fasthttp.Client
	baseURL     string
	apiKey      string
	apiSecret   string
	accountType string
	recvWindow  string
	timeout     time.Duration
	now         func() time.Time
	log         logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(hc *fasthttp.Client) Option { return func(c *Client) { c.http = hc } }

// WithNow replaces the clock used for request timestamps.
func WithNow(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func NewClient(cfg config.BybitConfig, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		http:        &fasthttp.Client{Name: "spotbot"},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		accountType: cfg.AccountType,
		recvWindow:  strconv.Itoa(cfg.RecvWindow),
		timeout:     cfg.Timeout,
		now:         time.Now,
		log:         log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sign returns hex(HMAC-SHA256(secret, timestamp + apiKey + recvWindow + payload)).
// payload is the raw query string of a GET or the JSON body of a POST.
func Sign(secret, timestamp, apiKey, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(recvWindow))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type request struct {
	method string
	path   string
	query  [][2]string
	body   []byte
	signed bool
}

// do sends the request and returns the "result" object of a successful
// envelope. Transport, HTTP status and decoding failures wrap
// types.ErrGateway; a non-zero retCode is a *types.APIError.
func (c *Client) do(ctx context.Context, r request) (gjson.Result, error) {
	if err := ctx.Err(); err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s: %w", types.ErrGateway, r.path, err)
	}

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	for _, kv := range r.query {
		args.Add(kv[0], kv[1])
	}
	query := args.String()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + r.path
	if query != "" {
		uri += "?" + query
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(r.method)
	payload := query
	if r.method == fasthttp.MethodPost {
		req.Header.SetContentType("application/json")
		req.SetBody(r.body)
		payload = string(r.body)
	}
	if r.signed {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
		req.Header.Set("X-BAPI-SIGN", Sign(c.apiSecret, ts, c.apiKey, c.recvWindow, payload))
	}

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s %s: %w", types.ErrGateway, r.method, r.path, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return gjson.Result{}, fmt.Errorf("%w: %s %s: http %d", types.ErrGateway, r.method, r.path, code)
	}

	// string() copies; resp goes back to the pool on return.
	body := string(resp.Body())
	if !gjson.Valid(body) {
		return gjson.Result{}, fmt.Errorf("%w: %s: response is not json", types.ErrGateway, r.path)
	}
	env := gjson.Parse(body)
	retCode := env.Get("retCode")
	if !retCode.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s: response has no retCode", types.ErrGateway, r.path)
	}
	if retCode.Int() != 0 {
		apiErr := &types.APIError{Code: retCode.Int(), Msg: env.Get("retMsg").String()}
		c.log.Warn("bybit_api_error",
			logger.String("path", r.path),
			logger.Int("ret_code", int(apiErr.Code)),
			logger.String("ret_msg", apiErr.Msg),
		)
		return gjson.Result{}, apiErr
	}
	return env.Get("result"), nil
}

// deadline is the earlier of the context deadline and now + timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if c.timeout <= 0 {
		d = time.Now().Add(10 * time.Second)
	}
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func decodeErr(path, field string, err error) error {
	return fmt.Errorf("%w: %s: decode %s: %w", types.ErrGateway, path, field, err)
}
