// internal/exchange/bitget/client.go
package bitget

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/assist-by/harmonia/internal/domain"
)

const (
	mainnetBaseURL = "https://api.bitget.com"
	testnetBaseURL = "https://api.bitget.com" // Bitget V2는 데모 트레이딩을 paptrading 헤더로 구분합니다

	defaultProductType = "USDT-FUTURES"
	defaultMarginCoin  = "USDT"
)

// RetryConfig는 재시도 설정을 정의합니다
type RetryConfig struct {
	MaxAttempts int           // 최대 시도 횟수 (첫 시도 포함)
	BaseDelay   time.Duration // 기본 대기 시간
	Factor      float64       // 대기 시간 증가 계수
}

// Client는 Bitget V2 선물 API 클라이언트를 구현합니다
type Client struct {
	apiKey     string
	secretKey  string
	passphrase string
	subAccount string // 이 클라이언트가 바인딩된 서브 계정 이름
	baseURL    string
	testnet    bool
	httpClient *http.Client

	// 같은 호스트를 향하는 모든 클라이언트가 하나의 게이트를 공유해야 합니다
	limiter *rate.Limiter
	retry   RetryConfig

	mu    sync.RWMutex
	specs map[string]domain.ContractSpec // 심볼별 계약 정보 캐시
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 개별 요청의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTestnet은 데모 트레이딩 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *Client) {
		c.testnet = useTestnet
		if useTestnet {
			c.baseURL = testnetBaseURL
		}
	}
}

// WithSubAccount는 클라이언트가 사용할 서브 계정 이름을 설정합니다
func WithSubAccount(name string) ClientOption {
	return func(c *Client) {
		c.subAccount = name
	}
}

// WithRateLimiter는 요청 페이싱 게이트를 설정합니다.
// 같은 거래소 호스트를 쓰는 클라이언트들은 반드시 같은 리미터를 공유해야 합니다.
func WithRateLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRetryConfig는 재시도 설정을 지정합니다
func WithRetryConfig(retry RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = retry
	}
}

// NewClient는 새로운 Bitget API 클라이언트를 생성합니다
func NewClient(apiKey, secretKey, passphrase string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		baseURL:    mainnetBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			Factor:      2.0,
		},
		specs: make(map[string]domain.ContractSpec),
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SubAccount는 클라이언트가 바인딩된 서브 계정 이름을 반환합니다
func (c *Client) SubAccount() string {
	return c.subAccount
}

// Initialize는 자격 증명을 검증합니다.
// 잔고 조회가 성공하면 API 키와 서브 계정 바인딩이 유효한 것으로 판단합니다.
func (c *Client) Initialize(ctx context.Context) error {
	if c.apiKey == "" || c.secretKey == "" || c.passphrase == "" {
		return fmt.Errorf("bitget API 자격 증명이 설정되지 않았습니다")
	}

	if _, err := c.GetBalance(ctx); err != nil {
		return fmt.Errorf("자격 증명 검증 실패 (서브 계정: %s): %w", c.subAccount, err)
	}

	log.Printf("bitget 클라이언트 초기화 완료 (서브 계정: %s, 테스트넷: %v)", c.subAccount, c.testnet)
	return nil
}

// Close는 클라이언트를 종료합니다
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// sign은 요청에 대한 서명을 생성합니다.
// 서명 문자열: timestamp + method + requestPath(+query) + body
func (c *Client) sign(timestamp, method, requestPath, body string) string {
	message := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// doRequest는 HTTP 요청을 실행하고 응답 envelope의 data를 반환합니다.
// 일시적 오류는 지수 백오프로 재시도하며, 모두 실패하면 TransientError로 감쌉니다.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, body map[string]interface{}) (json.RawMessage, error) {
	requestPath := endpoint
	if len(params) > 0 {
		requestPath += "?" + params.Encode()
	}

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("요청 본문 직렬화 실패: %w", err)
		}
		bodyStr = string(raw)
	}

	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		// 페이싱 게이트 통과 후에만 요청을 전송합니다
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.dispatch(ctx, method, requestPath, bodyStr)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt == c.retry.MaxAttempts {
			break
		}

		log.Printf("bitget 요청 실패, 재시도 예정 (%s %s, 시도 %d/%d): %v",
			method, endpoint, attempt, c.retry.MaxAttempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * c.retry.Factor)
		}
	}

	return nil, &TransientError{Op: method + " " + endpoint, Attempts: c.retry.MaxAttempts, Err: lastErr}
}

// dispatch는 단일 HTTP 요청을 전송하고 envelope를 해석합니다
func (c *Client) dispatch(ctx context.Context, method, requestPath, bodyStr string) (json.RawMessage, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	var reqBody io.Reader
	if bodyStr != "" {
		reqBody = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, reqBody)
	if err != nil {
		return nil, fmt.Errorf("요청 생성 실패: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", c.sign(timestamp, method, requestPath, bodyStr))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("locale", "en-US")
	if c.testnet {
		req.Header.Set("paptrading", "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API 요청 실패: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("응답 읽기 실패: %w", err)
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Code: "unknown", Message: string(raw)}
	}

	if resp.StatusCode != http.StatusOK || (envelope.Code != "" && envelope.Code != "00000") {
		return nil, &APIError{HTTPStatus: resp.StatusCode, Code: envelope.Code, Message: envelope.Msg}
	}

	return envelope.Data, nil
}

// SetLeverage는 심볼의 레버리지를 설정합니다
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]interface{}{
		"symbol":      symbol,
		"productType": defaultProductType,
		"marginCoin":  defaultMarginCoin,
		"leverage":    strconv.Itoa(leverage),
	}

	_, err := c.doRequest(ctx, http.MethodPost, "/api/v2/mix/account/set-leverage", nil, body)
	if err != nil {
		return fmt.Errorf("레버리지 설정 실패: %w", err)
	}

	return nil
}

// SetMarginMode는 심볼의 보증금 모드를 설정합니다
func (c *Client) SetMarginMode(ctx context.Context, symbol string, mode domain.MarginMode) error {
	body := map[string]interface{}{
		"symbol":      symbol,
		"productType": defaultProductType,
		"marginCoin":  defaultMarginCoin,
		"marginMode":  string(mode),
	}

	_, err := c.doRequest(ctx, http.MethodPost, "/api/v2/mix/account/set-margin-mode", nil, body)
	if err != nil {
		// 이미 원하는 모드로 설정된 경우는 에러가 아닙니다
		if strings.Contains(err.Error(), "No need to change") {
			return nil
		}
		return fmt.Errorf("보증금 모드 설정 실패: %w", err)
	}

	return nil
}

// GetMarketTicker는 심볼의 현재 시세를 조회합니다
func (c *Client) GetMarketTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("productType", defaultProductType)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/ticker", params, nil)
	if err != nil {
		return nil, fmt.Errorf("시세 조회 실패: %w", err)
	}

	var tickers []struct {
		Symbol     string `json:"symbol"`
		LastPr     string `json:"lastPr"`
		High24h    string `json:"high24h"`
		Low24h     string `json:"low24h"`
		BaseVolume string `json:"baseVolume"`
		Ts         string `json:"ts"`
	}
	if err := json.Unmarshal(data, &tickers); err != nil {
		return nil, fmt.Errorf("시세 데이터 파싱 실패: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("시세 정보를 찾을 수 없음: %s", symbol)
	}

	t := tickers[0]
	last, err := decimal.NewFromString(t.LastPr)
	if err != nil {
		return nil, fmt.Errorf("체결가 파싱 실패(%s): %w", t.LastPr, err)
	}
	high, _ := decimal.NewFromString(t.High24h)
	low, _ := decimal.NewFromString(t.Low24h)
	volume, _ := decimal.NewFromString(t.BaseVolume)
	tsMillis, _ := strconv.ParseInt(t.Ts, 10, 64)

	return &domain.Ticker{
		Symbol:    t.Symbol,
		Last:      last,
		High:      high,
		Low:       low,
		Volume:    volume,
		Timestamp: time.Unix(0, tsMillis*int64(time.Millisecond)),
	}, nil
}

// GetContractSpec은 심볼의 계약 정보를 조회합니다. 결과는 캐시됩니다.
func (c *Client) GetContractSpec(ctx context.Context, symbol string) (*domain.ContractSpec, error) {
	c.mu.RLock()
	if spec, ok := c.specs[symbol]; ok {
		c.mu.RUnlock()
		return &spec, nil
	}
	c.mu.RUnlock()

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("productType", defaultProductType)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/market/contracts", params, nil)
	if err != nil {
		return nil, fmt.Errorf("계약 정보 조회 실패: %w", err)
	}

	var contracts []struct {
		Symbol       string `json:"symbol"`
		PricePlace   string `json:"pricePlace"`
		VolumePlace  string `json:"volumePlace"`
		MinTradeNum  string `json:"minTradeNum"`
		MinTradeUSDT string `json:"minTradeUSDT"`
	}
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("계약 정보 파싱 실패: %w", err)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("계약 정보를 찾을 수 없음: %s", symbol)
	}

	raw := contracts[0]
	pricePlace, _ := strconv.Atoi(raw.PricePlace)
	volumePlace, _ := strconv.Atoi(raw.VolumePlace)
	minTradeNum, _ := decimal.NewFromString(raw.MinTradeNum)
	minTradeUSDT, _ := decimal.NewFromString(raw.MinTradeUSDT)

	spec := domain.ContractSpec{
		Symbol:         raw.Symbol,
		PricePlaces:    int32(pricePlace),
		QuantityPlaces: int32(volumePlace),
		MinTradeNum:    minTradeNum,
		MinTradeUSDT:   minTradeUSDT,
	}

	c.mu.Lock()
	c.specs[symbol] = spec
	c.mu.Unlock()

	return &spec, nil
}

// PlaceOrder는 새로운 주문을 생성합니다.
// 양방향(hedge) 모드를 전제로 하며, 감소 전용 주문은 tradeSide=close로 전송합니다.
func (c *Client) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderAck, error) {
	tradeSide := "open"
	if order.ReduceOnly {
		tradeSide = "close"
	}

	body := map[string]interface{}{
		"symbol":      order.Symbol,
		"productType": defaultProductType,
		"marginMode":  string(domain.CrossedMargin),
		"marginCoin":  defaultMarginCoin,
		"side":        string(order.Side),
		"orderType":   string(order.Type),
		"size":        order.Amount.String(),
		"tradeSide":   tradeSide,
	}

	if order.Type == domain.Limit {
		body["price"] = order.Price.String()
		body["force"] = "gtc"
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v2/mix/order/place-order", nil, body)
	if err != nil {
		return nil, fmt.Errorf("주문 실행 실패 [심볼: %s, 타입: %s, 수량: %s]: %w",
			order.Symbol, order.Type, order.Amount, err)
	}

	var result struct {
		OrderID   string `json:"orderId"`
		ClientOid string `json:"clientOid"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("주문 응답 파싱 실패: %w", err)
	}

	return &domain.OrderAck{
		OrderID:       result.OrderID,
		ClientOrderID: result.ClientOid,
		Symbol:        order.Symbol,
		Side:          order.Side,
		CreatedAt:     time.Now(),
	}, nil
}

// ClosePosition은 특정 심볼의 포지션을 시장가로 청산합니다
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.PositionSide) (*domain.OrderAck, error) {
	body := map[string]interface{}{
		"symbol":      symbol,
		"productType": defaultProductType,
	}
	if side.IsValid() {
		body["holdSide"] = string(side)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v2/mix/order/close-positions", nil, body)
	if err != nil {
		return nil, fmt.Errorf("포지션 청산 실패 [심볼: %s, 방향: %s]: %w", symbol, side, err)
	}

	var result struct {
		SuccessList []struct {
			OrderID   string `json:"orderId"`
			ClientOid string `json:"clientOid"`
		} `json:"successList"`
		FailureList []struct {
			OrderID  string `json:"orderId"`
			ErrorMsg string `json:"errorMsg"`
		} `json:"failureList"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("청산 응답 파싱 실패: %w", err)
	}

	if len(result.FailureList) > 0 {
		return nil, fmt.Errorf("포지션 청산 거절 [심볼: %s]: %s", symbol, result.FailureList[0].ErrorMsg)
	}

	ack := &domain.OrderAck{
		Symbol:    symbol,
		Side:      domain.OrderSideForExit(side),
		CreatedAt: time.Now(),
	}
	if len(result.SuccessList) > 0 {
		ack.OrderID = result.SuccessList[0].OrderID
		ack.ClientOrderID = result.SuccessList[0].ClientOid
	}

	return ack, nil
}

// GetPositions는 현재 열린 포지션을 조회합니다.
// 방향이 long/short가 아닌 항목은 불변식 위반으로 보고 건너뜁니다.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	params := url.Values{}
	params.Set("productType", defaultProductType)
	params.Set("marginCoin", defaultMarginCoin)

	endpoint := "/api/v2/mix/position/all-position"
	if symbol != "" {
		endpoint = "/api/v2/mix/position/single-position"
		params.Set("symbol", symbol)
	}

	data, err := c.doRequest(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, fmt.Errorf("포지션 조회 실패: %w", err)
	}

	var rows []struct {
		Symbol           string `json:"symbol"`
		HoldSide         string `json:"holdSide"`
		Total            string `json:"total"`
		AverageOpenPrice string `json:"openPriceAvg"`
		MarkPrice        string `json:"markPrice"`
		UnrealizedPL     string `json:"unrealizedPL"`
		AchievedProfits  string `json:"achievedProfits"`
		Leverage         string `json:"leverage"`
		LiquidationPrice string `json:"liquidationPrice"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("포지션 데이터 파싱 실패: %w", err)
	}

	var positions []domain.Position
	for _, row := range rows {
		contracts, err := decimal.NewFromString(row.Total)
		if err != nil || contracts.IsZero() {
			continue // 빈 포지션은 제외
		}

		side, ok := domain.ParseHoldSide(row.HoldSide)
		if !ok {
			log.Printf("알 수 없는 포지션 방향을 건너뜁니다 [심볼: %s, holdSide: %q]", row.Symbol, row.HoldSide)
			continue
		}

		entryPrice, _ := decimal.NewFromString(row.AverageOpenPrice)
		markPrice, _ := decimal.NewFromString(row.MarkPrice)
		unrealized, _ := decimal.NewFromString(row.UnrealizedPL)
		realized, _ := decimal.NewFromString(row.AchievedProfits)
		liquidation, _ := decimal.NewFromString(row.LiquidationPrice)
		leverage, _ := strconv.Atoi(row.Leverage)

		positions = append(positions, domain.Position{
			Symbol:           row.Symbol,
			Side:             side,
			Contracts:        contracts,
			Notional:         contracts.Mul(markPrice),
			EntryPrice:       entryPrice,
			MarkPrice:        markPrice,
			UnrealizedPnL:    unrealized,
			RealizedPnL:      realized,
			Leverage:         leverage,
			LiquidationPrice: liquidation,
		})
	}

	return positions, nil
}

// GetBalance는 계정의 잔고를 통화별로 조회합니다
func (c *Client) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	params := url.Values{}
	params.Set("productType", defaultProductType)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/v2/mix/account/accounts", params, nil)
	if err != nil {
		return nil, fmt.Errorf("잔고 조회 실패: %w", err)
	}

	var rows []struct {
		MarginCoin string `json:"marginCoin"`
		Available  string `json:"available"`
		Locked     string `json:"locked"`
		Equity     string `json:"accountEquity"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("잔고 데이터 파싱 실패: %w", err)
	}

	balances := make(map[string]domain.Balance)
	for _, row := range rows {
		free, _ := decimal.NewFromString(row.Available)
		locked, _ := decimal.NewFromString(row.Locked)
		total, _ := decimal.NewFromString(row.Equity)

		balances[row.MarginCoin] = domain.Balance{
			Free:  free,
			Used:  locked,
			Total: total,
		}
	}

	return balances, nil
}
