package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/assist-by/harmonia/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient("key", "secret", "pass",
		WithBaseURL(baseURL),
		WithRateLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2}),
	)
}

func TestSign(t *testing.T) {
	c := NewClient("key", "secret", "pass")

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		message string
	}{
		{
			name:    "쿼리가 포함된 GET 요청",
			method:  "GET",
			path:    "/api/v2/mix/market/ticker?productType=USDT-FUTURES&symbol=BTCUSDT",
			body:    "",
			message: "1700000000000GET/api/v2/mix/market/ticker?productType=USDT-FUTURES&symbol=BTCUSDT",
		},
		{
			name:    "본문이 포함된 POST 요청",
			method:  "POST",
			path:    "/api/v2/mix/order/place-order",
			body:    `{"symbol":"BTCUSDT"}`,
			message: `1700000000000POST/api/v2/mix/order/place-order{"symbol":"BTCUSDT"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.sign("1700000000000", tt.method, tt.path, tt.body)

			// 서명 문자열은 timestamp + method + path(+query) + body 순서입니다
			h := hmac.New(sha256.New, []byte("secret"))
			h.Write([]byte(tt.message))
			want := base64.StdEncoding.EncodeToString(h.Sum(nil))
			assert.Equal(t, want, got)
		})
	}
}

func TestDoRequest_SendsAuthHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "key", gotHeaders.Get("ACCESS-KEY"))
	assert.Equal(t, "pass", gotHeaders.Get("ACCESS-PASSPHRASE"))
	assert.NotEmpty(t, gotHeaders.Get("ACCESS-SIGN"))
	assert.NotEmpty(t, gotHeaders.Get("ACCESS-TIMESTAMP"))
}

func TestDoRequest_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":"50001","msg":"internal error"}`)
			return
		}
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.GetPositions(context.Background(), "BTCUSDT")

	assert.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoRequest_TransientErrorAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"code":"50001","msg":"unavailable"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.GetPositions(context.Background(), "BTCUSDT")

	require.Error(t, err)
	assert.True(t, IsTransient(err), "재시도 소진 후에는 TransientError가 나와야 합니다: %v", err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "최대 3회까지만 시도해야 합니다")
}

func TestDoRequest_SemanticErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"40762","msg":"The order size is greater than the max open size"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.GetPositions(context.Background(), "BTCUSDT")

	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx 의미 오류는 재시도하지 않습니다")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "40762", apiErr.Code)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"5xx는 재시도", &APIError{HTTPStatus: 500, Code: "50001"}, true},
		{"429는 재시도", &APIError{HTTPStatus: 429, Code: "429"}, true},
		{"400은 재시도 안 함", &APIError{HTTPStatus: 400, Code: "40001"}, false},
		{"401은 재시도 안 함", &APIError{HTTPStatus: 401, Code: "40037"}, false},
		{"타임아웃은 재시도", context.DeadlineExceeded, true},
		{"네트워크 오류는 재시도", &net.DNSError{IsTimeout: true}, true},
		{"일반 오류는 재시도 안 함", fmt.Errorf("파싱 실패"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestGetBalance_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/mix/account/accounts", r.URL.Path)
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[
			{"marginCoin":"USDT","available":"123.45","locked":"10.55","accountEquity":"134.00"}
		]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	balances, err := c.GetBalance(context.Background())
	require.NoError(t, err)

	usdt, ok := balances["USDT"]
	require.True(t, ok)
	assert.True(t, usdt.Free.Equal(decimal.NewFromFloat(123.45)))
	assert.True(t, usdt.Used.Equal(decimal.NewFromFloat(10.55)))
	assert.True(t, usdt.Total.Equal(decimal.NewFromFloat(134.00)))
	assert.True(t, usdt.Consistent(decimal.NewFromFloat(0.01)))
}

func TestGetPositions_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","holdSide":"long","total":"0.5","openPriceAvg":"50000",
			 "markPrice":"51000","unrealizedPL":"500","achievedProfits":"12.5",
			 "leverage":"5","liquidationPrice":"41000"},
			{"symbol":"BTCUSDT","holdSide":"net","total":"0.1","openPriceAvg":"50000",
			 "markPrice":"51000","unrealizedPL":"0","achievedProfits":"0",
			 "leverage":"5","liquidationPrice":"0"},
			{"symbol":"BTCUSDT","holdSide":"short","total":"0","openPriceAvg":"0",
			 "markPrice":"51000","unrealizedPL":"0","achievedProfits":"0",
			 "leverage":"5","liquidationPrice":"0"}
		]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	positions, err := c.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	// 알 수 없는 방향과 빈 포지션은 건너뜁니다
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, domain.LongPosition, p.Side)
	assert.True(t, p.Contracts.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(50000)))
	assert.True(t, p.Notional.Equal(decimal.NewFromInt(25500)), "명목 가치 = 수량 × 마크 가격")
	assert.True(t, p.UnrealizedPnL.Equal(decimal.NewFromInt(500)))
	assert.True(t, p.LiquidationPrice.Equal(decimal.NewFromInt(41000)))
	assert.Equal(t, 5, p.Leverage)
}

func TestGetMarketTicker_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","lastPr":"50123.5","high24h":"51000","low24h":"49000",
			 "baseVolume":"1234.5","ts":"1700000000000"}
		]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	ticker, err := c.GetMarketTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.True(t, ticker.Last.Equal(decimal.NewFromFloat(50123.5)))
	assert.Equal(t, int64(1700000000000), ticker.Timestamp.UnixMilli())
}

func TestGetContractSpec_CachesResult(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","pricePlace":"1","volumePlace":"3",
			 "minTradeNum":"0.001","minTradeUSDT":"5"}
		]}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	ctx := context.Background()

	spec, err := c.GetContractSpec(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), spec.PricePlaces)
	assert.Equal(t, int32(3), spec.QuantityPlaces)

	_, err = c.GetContractSpec(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "계약 정보는 캐시되어야 합니다")
}

func TestPlaceOrder_HedgeModeTradeSide(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":{"orderId":"121212","clientOid":"abc"}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	t.Run("진입 주문은 tradeSide=open", func(t *testing.T) {
		ack, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
			Symbol: "BTCUSDT",
			Side:   domain.Buy,
			Type:   domain.Market,
			Amount: decimal.NewFromFloat(0.5),
		})
		require.NoError(t, err)
		assert.Equal(t, "121212", ack.OrderID)
		assert.Contains(t, gotBody, `"tradeSide":"open"`)
		assert.Contains(t, gotBody, `"side":"buy"`)
	})

	t.Run("청산 주문은 tradeSide=close", func(t *testing.T) {
		_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
			Symbol:     "BTCUSDT",
			Side:       domain.Sell,
			Type:       domain.Market,
			Amount:     decimal.NewFromFloat(0.5),
			ReduceOnly: true,
		})
		require.NoError(t, err)
		assert.Contains(t, gotBody, `"tradeSide":"close"`)
	})
}

func TestClosePosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/mix/order/close-positions", r.URL.Path)
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":{
			"successList":[{"orderId":"778899","clientOid":"xyz"}],"failureList":[]
		}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	ack, err := c.ClosePosition(context.Background(), "BTCUSDT", domain.LongPosition)
	require.NoError(t, err)
	assert.Equal(t, "778899", ack.OrderID)
}
