package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/testutils"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const (
	testKey    = "key-123"
	testSecret = "secret-456"
)

var fixedNow = time.UnixMilli(1748304000000)

// newTestClient serves handler on an in-memory listener and returns a client
// pointed at it.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	cfg := config.BybitConfig{
		BaseURL:     "http://bybit.test",
		APIKey:      testKey,
		APISecret:   testSecret,
		AccountType: "UNIFIED",
		RecvWindow:  5000,
		Timeout:     2 * time.Second,
	}
	return NewClient(cfg, testutils.NewMockLogger(), WithHTTPClient(hc), WithNow(func() time.Time { return fixedNow }))
}

// checkSignature verifies the auth headers of a signed request.
func checkSignature(ctx *fasthttp.RequestCtx) bool {
	payload := string(ctx.URI().QueryString())
	if string(ctx.Method()) == fasthttp.MethodPost {
		payload = string(ctx.PostBody())
	}
	h := &ctx.Request.Header
	if string(h.Peek("X-BAPI-API-KEY")) != testKey ||
		string(h.Peek("X-BAPI-TIMESTAMP")) != "1748304000000" ||
		string(h.Peek("X-BAPI-RECV-WINDOW")) != "5000" {
		return false
	}
	want := Sign(testSecret, "1748304000000", testKey, "5000", payload)
	return string(h.Peek("X-BAPI-SIGN")) == want
}

func ok(ctx *fasthttp.RequestCtx, result string) {
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"retCode":0,"retMsg":"OK","result":` + result + `,"time":1748304000000}`)
}

func TestSign_KnownVector(t *testing.T) {
	got := Sign(testSecret, "1", "k", "5000", "a=b")
	again := Sign(testSecret, "1", "k", "5000", "a=b")
	if len(got) != 64 || got != again {
		t.Fatalf("signature should be 64 hex chars and stable, got %q", got)
	}
	if Sign(testSecret, "2", "k", "5000", "a=b") == got {
		t.Fatal("timestamp must be part of the signature")
	}
}

func TestGetKlines(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		if string(ctx.Path()) != pathKline || string(args.Peek("symbol")) != "BTCUSDT" ||
			string(args.Peek("interval")) != "5" || string(args.Peek("limit")) != "2" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ok(ctx, `{"category":"spot","symbol":"BTCUSDT","list":[
			["1748304300000","101","102","100.5","101.5","12.5","1268.75"],
			["1748304000000","100","101.2","99.8","101","10","1010"]]}`)
	})

	candles, err := c.GetKlines(context.Background(), "spot", "BTCUSDT", "5", 2)
	if err != nil {
		t.Fatalf("GetKlines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	newest := candles[0]
	if !newest.OpenTime.Equal(time.UnixMilli(1748304300000)) || newest.Close != 101.5 || newest.High != 102 ||
		newest.Volume != 12.5 || newest.Turnover != 1268.75 {
		t.Fatalf("unexpected candle: %+v", newest)
	}
}

func TestGetWalletBalanceSigned(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if !checkSignature(ctx) || string(ctx.QueryArgs().Peek("accountType")) != "UNIFIED" {
			ctx.SetBodyString(`{"retCode":10004,"retMsg":"error sign!","result":{}}`)
			return
		}
		ok(ctx, `{"list":[{"accountType":"UNIFIED","totalEquity":"10000.1234","coin":[]}]}`)
	})

	wb, err := c.GetWalletBalance(context.Background())
	if err != nil {
		t.Fatalf("GetWalletBalance: %v", err)
	}
	eq, err := wb.Equity()
	if err != nil || !eq.Equal(decimal.RequireFromString("10000.1234")) {
		t.Fatalf("unexpected equity %s (%v)", eq, err)
	}
}

func TestGetFeeRate(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if !checkSignature(ctx) {
			ctx.SetBodyString(`{"retCode":10004,"retMsg":"error sign!","result":{}}`)
			return
		}
		ok(ctx, `{"list":[{"symbol":"BTCUSDT","takerFeeRate":"0.001","makerFeeRate":"0.0008"}]}`)
	})

	fees, err := c.GetFeeRate(context.Background(), "spot", "BTCUSDT")
	if err != nil {
		t.Fatalf("GetFeeRate: %v", err)
	}
	if len(fees.List) != 1 || fees.RoundTrip().String() != "0.002" {
		t.Fatalf("unexpected fees: %+v", fees)
	}
}

func TestCreateOrder(t *testing.T) {
	var got createOrderBody
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Method()) != fasthttp.MethodPost || string(ctx.Path()) != pathCreateOrder || !checkSignature(ctx) {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(ctx.PostBody(), &got); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ok(ctx, `{"orderId":"1321003749386327552","orderLinkId":"`+got.OrderLinkID+`"}`)
	})

	ack, err := c.CreateOrder(context.Background(), "spot", types.Order{
		Symbol: "BTCUSDT",
		Side:   types.Sell,
		Type:   types.Limit,
		Qty:    decimal.RequireFromString("0.015"),
		Price:  decimal.RequireFromString("104.5"),
		LinkID: "link-1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if ack.OrderID != "1321003749386327552" || ack.OrderLinkID != "link-1" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	want := createOrderBody{Category: "spot", Symbol: "BTCUSDT", Side: "Sell", OrderType: "Limit", Qty: "0.015", Price: "104.5", OrderLinkID: "link-1"}
	if got != want {
		t.Fatalf("body %+v, want %+v", got, want)
	}
}

func TestCreateMarketOrderOmitsPrice(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		_ = json.Unmarshal(ctx.PostBody(), &raw)
		ok(ctx, `{"orderId":"1","orderLinkId":""}`)
	})
	_, err := c.CreateOrder(context.Background(), "spot", types.Order{Symbol: "BTCUSDT", Side: types.Buy, Type: types.Market, Qty: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, has := raw["price"]; has {
		t.Fatal("market orders carry no price")
	}
}

func TestVenueErrorIsAPIError(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"retCode":170131,"retMsg":"Insufficient balance.","result":{}}`)
	})

	err := c.CancelOrder(context.Background(), "spot", "BTCUSDT", "42")
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 170131 {
		t.Fatalf("expected APIError 170131, got %v", err)
	}
	if !errors.Is(err, types.ErrGateway) {
		t.Fatal("venue errors are gateway errors")
	}
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})

	_, err := c.GetKlines(context.Background(), "spot", "BTCUSDT", "5", 1)
	if !errors.Is(err, types.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		t.Fatal("an HTTP failure must stay distinguishable from a venue error")
	}
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString("<html>maintenance</html>") })
	if _, err := c.GetKlines(context.Background(), "spot", "BTCUSDT", "5", 1); !errors.Is(err, types.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	hit := false
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) { hit = true; ok(ctx, `{}`) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GetWalletBalance(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if hit {
		t.Fatal("no request should be sent on a cancelled context")
	}
}

func TestGetInstrument(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.QueryArgs().Peek("symbol")) != "BTCUSDT" {
			ok(ctx, `{"category":"spot","list":[]}`)
			return
		}
		ok(ctx, `{"category":"spot","list":[{"symbol":"BTCUSDT","status":"Trading",
			"lotSizeFilter":{"basePrecision":"0.000001","minOrderQty":"0.000048","maxOrderQty":"71.73956243"}}]}`)
	})

	ic, err := c.GetInstrument(context.Background(), "spot", "BTCUSDT")
	if err != nil {
		t.Fatalf("GetInstrument: %v", err)
	}
	if ic.Symbol != "BTCUSDT" || ic.MinOrderQty.String() != "0.000048" {
		t.Fatalf("unexpected constraint: %+v", ic)
	}
	if _, err := c.GetInstrument(context.Background(), "spot", "NOPE"); !errors.Is(err, types.ErrGateway) {
		t.Fatalf("unlisted symbol should fail, got %v", err)
	}
}
