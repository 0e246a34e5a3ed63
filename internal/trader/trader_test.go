package trader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/harmonia/internal/domain"
)

// fakeExchange는 트레이더 테스트용 거래소 구현입니다
type fakeExchange struct {
	mu sync.Mutex

	balances  map[string]domain.Balance
	positions []domain.Position
	spec      domain.ContractSpec
	ticker    domain.Ticker

	placed     []domain.OrderRequest
	closed     []domain.PositionSide
	leverage   int
	marginMode domain.MarginMode

	balanceErr error
	orderErr   error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balances: map[string]domain.Balance{
			"USDT": {
				Free:  decimal.NewFromInt(10000),
				Used:  decimal.Zero,
				Total: decimal.NewFromInt(10000),
			},
		},
		spec: domain.ContractSpec{
			Symbol:         "BTCUSDT",
			PricePlaces:    1,
			QuantityPlaces: 3,
			MinTradeNum:    decimal.NewFromFloat(0.001),
			MinTradeUSDT:   decimal.NewFromInt(5),
		},
		ticker: domain.Ticker{
			Symbol:    "BTCUSDT",
			Last:      decimal.NewFromInt(50000),
			Timestamp: time.Now(),
		},
	}
}

func (f *fakeExchange) Initialize(ctx context.Context) error { return nil }
func (f *fakeExchange) Close() error                         { return nil }

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage = leverage
	return nil
}

func (f *fakeExchange) SetMarginMode(ctx context.Context, symbol string, mode domain.MarginMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marginMode = mode
	return nil
}

func (f *fakeExchange) GetMarketTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.ticker
	return &t, nil
}

func (f *fakeExchange) GetContractSpec(ctx context.Context, symbol string) (*domain.ContractSpec, error) {
	spec := f.spec
	return &spec, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.placed = append(f.placed, order)

	// 시장가 진입은 즉시 포지션으로 반영합니다
	side := domain.LongPosition
	if order.Side == domain.Sell {
		side = domain.ShortPosition
	}
	f.positions = append(f.positions, domain.Position{
		Symbol:     order.Symbol,
		Side:       side,
		Contracts:  order.Amount,
		Notional:   order.Amount.Mul(f.ticker.Last),
		EntryPrice: f.ticker.Last,
		MarkPrice:  f.ticker.Last,
		Leverage:   f.leverage,
	})
	return &domain.OrderAck{OrderID: "1", Symbol: order.Symbol, Side: order.Side, CreatedAt: time.Now()}, nil
}

func (f *fakeExchange) ClosePosition(ctx context.Context, symbol string, side domain.PositionSide) (*domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, side)

	var remaining []domain.Position
	for _, p := range f.positions {
		if p.Side != side {
			remaining = append(remaining, p)
		}
	}
	f.positions = remaining
	return &domain.OrderAck{OrderID: "2", Symbol: symbol, CreatedAt: time.Now()}, nil
}

func (f *fakeExchange) GetPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Position(nil), f.positions...), nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	out := make(map[string]domain.Balance, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func testConfig() Config {
	return Config{
		Symbol:          "BTCUSDT",
		InitialCapital:  decimal.NewFromInt(10000),
		Leverage:        5,
		SubAccount:      "strategic_long",
		ConfirmAttempts: 2,
		ConfirmDelay:    time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	}
}

func TestLiveTrader_Initialize(t *testing.T) {
	ex := newFakeExchange()
	trader := NewLiveTrader(testConfig(), ex, NewQueueSource(), nil)

	require.NoError(t, trader.Initialize(context.Background()))

	assert.Equal(t, 5, ex.leverage)
	assert.Equal(t, domain.CrossedMargin, ex.marginMode)
	assert.NotNil(t, trader.spec)
}

func TestLiveTrader_StartBeforeInitialize(t *testing.T) {
	trader := NewLiveTrader(testConfig(), newFakeExchange(), NewQueueSource(), nil)
	err := trader.StartTrading(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLiveTrader_ExecutesLongEntry(t *testing.T) {
	ex := newFakeExchange()
	source := NewQueueSource()
	trader := NewDirectionalTrader(domain.LongPosition, testConfig(), ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))

	require.Len(t, ex.placed, 1)
	order := ex.placed[0]
	assert.Equal(t, domain.Buy, order.Side)
	assert.Equal(t, domain.Market, order.Type)

	// 10000 × 0.0618 × 5 / 50000 = 0.0618 → 수량 자릿수 3으로 내림
	assert.True(t, order.Amount.Equal(decimal.NewFromFloat(0.061)),
		"수량이 정밀도에 맞게 계산되어야 합니다: %s", order.Amount)
}

func TestLiveTrader_InitialCapitalCapsSizing(t *testing.T) {
	ex := newFakeExchange()
	source := NewQueueSource()
	cfg := testConfig()
	cfg.InitialCapital = decimal.NewFromInt(5000)
	trader := NewDirectionalTrader(domain.LongPosition, cfg, ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))

	require.Len(t, ex.placed, 1)
	// 가용 잔고 10000이지만 기준 금액은 5000으로 제한됩니다.
	// 5000 × 0.0618 × 5 / 50000 = 0.0309 → 수량 자릿수 3으로 내림
	assert.True(t, ex.placed[0].Amount.Equal(decimal.NewFromFloat(0.030)),
		"기준 금액 상한이 적용되어야 합니다: %s", ex.placed[0].Amount)
}

func TestLiveTrader_OppositeSignalNotExecuted(t *testing.T) {
	ex := newFakeExchange()
	source := NewQueueSource()
	trader := NewDirectionalTrader(domain.LongPosition, testConfig(), ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.ShortPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))

	assert.Empty(t, ex.placed)
}

func TestLiveTrader_NoDuplicateEntry(t *testing.T) {
	ex := newFakeExchange()
	source := NewQueueSource()
	trader := NewDirectionalTrader(domain.LongPosition, testConfig(), ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))
	require.Len(t, ex.placed, 1)

	// 같은 방향 포지션이 열려 있는 동안 두 번째 신호는 무시됩니다
	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))
	assert.Len(t, ex.placed, 1)
}

func TestLiveTrader_InsufficientBalanceContinues(t *testing.T) {
	ex := newFakeExchange()
	ex.balances["USDT"] = domain.Balance{Free: decimal.NewFromFloat(0.5), Total: decimal.NewFromFloat(0.5)}
	source := NewQueueSource()
	trader := NewDirectionalTrader(domain.LongPosition, testConfig(), ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})

	// 잔고 부족은 루프를 죽이지 않고 보류됩니다
	require.NoError(t, trader.step(ctx))
	assert.Empty(t, ex.placed)
}

func TestLiveTrader_BracketClosesOnStopLoss(t *testing.T) {
	ex := newFakeExchange()
	source := NewQueueSource()
	cfg := testConfig()
	cfg.StopLossPct = decimal.NewFromFloat(0.02)
	cfg.TakeProfitPct = decimal.NewFromFloat(0.04)
	trader := NewDirectionalTrader(domain.LongPosition, cfg, ex, source, nil)

	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	source.Push(&domain.EntrySignal{Side: domain.LongPosition, Price: decimal.NewFromInt(50000)})
	require.NoError(t, trader.step(ctx))
	require.Len(t, ex.placed, 1)

	// 손절 가격(49000) 아래로 하락하면 포지션을 청산합니다
	ex.mu.Lock()
	ex.ticker.Last = decimal.NewFromInt(48900)
	ex.mu.Unlock()

	require.NoError(t, trader.step(ctx))
	require.Len(t, ex.closed, 1)
	assert.Equal(t, domain.LongPosition, ex.closed[0])
}

func TestLiveTrader_StopTradingIdempotent(t *testing.T) {
	ex := newFakeExchange()
	trader := NewLiveTrader(testConfig(), ex, NewQueueSource(), nil)
	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	done := make(chan error, 1)
	go func() {
		done <- trader.StartTrading(ctx)
	}()

	// 루프가 시작될 때까지 잠시 대기
	time.Sleep(30 * time.Millisecond)

	trader.StopTrading()
	trader.StopTrading() // 두 번째 호출은 아무 일도 하지 않습니다

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("거래 루프가 종료되지 않았습니다")
	}
}

func TestLiveTrader_ObserveTickerSkipsRest(t *testing.T) {
	ex := newFakeExchange()
	trader := NewLiveTrader(testConfig(), ex, NewQueueSource(), nil)
	ctx := context.Background()
	require.NoError(t, trader.Initialize(ctx))

	pushed := domain.Ticker{Symbol: "BTCUSDT", Last: decimal.NewFromInt(51234), Timestamp: time.Now()}
	trader.ObserveTicker(pushed)

	got, err := trader.freshTicker(ctx)
	require.NoError(t, err)
	assert.True(t, got.Last.Equal(pushed.Last))

	// 다른 심볼의 시세는 무시됩니다
	trader.ObserveTicker(domain.Ticker{Symbol: "ETHUSDT", Last: decimal.NewFromInt(1)})
	got, err = trader.freshTicker(ctx)
	require.NoError(t, err)
	assert.True(t, got.Last.Equal(pushed.Last))
}

func TestTraderError(t *testing.T) {
	inner := fmt.Errorf("원인: %w", ErrInsufficientBalance)
	err := NewTraderError("BTCUSDT", "sizing", inner)

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "BTCUSDT")
	assert.Contains(t, err.Error(), "sizing")
}
