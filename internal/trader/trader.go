package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/exchange"
	"github.com/assist-by/harmonia/internal/exchange/bitget"
	"github.com/assist-by/harmonia/internal/notification"
)

// Config는 트레이더 설정을 정의합니다. 생성 후 변경하지 않습니다.
type Config struct {
	Symbol string

	// 포지션 크기 계산의 기준 금액 상한. 가용 잔고가 이 값보다 크면
	// 이 값을 기준으로 수량을 산정합니다. 0이면 가용 잔고 전체를 사용합니다.
	InitialCapital decimal.Decimal

	Leverage   int
	SubAccount string
	Testnet    bool

	// 전략 프로파일 신호만 사용하는 트레이더임을 표시합니다.
	// 실제 프로파일 선택은 조립 시점에서 이루어집니다.
	StrategicOnly bool

	// 진입 시 가용 잔고에서 배정하는 비율. 0이면 0.0618을 사용합니다.
	AllocationPct decimal.Decimal

	// 진입가 대비 손절/익절 비율. 0이면 브래킷을 관리하지 않습니다.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal

	PollInterval    time.Duration
	ConfirmAttempts int
	ConfirmDelay    time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.AllocationPct.IsZero() {
		cfg.AllocationPct = decimal.NewFromFloat(0.0618)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 5
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = time.Second
	}
	return cfg
}

// bracket은 포지션의 손절/익절 가격을 추적합니다
type bracket struct {
	entryPrice decimal.Decimal
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

// LiveTrader는 한 서브 계정에서 단일 심볼을 거래하는 기본 트레이더입니다.
// 신호 공급자를 조합 대상으로 받으므로 방향 필터 등은 공급자 교체로 표현합니다.
type LiveTrader struct {
	cfg      Config
	ex       exchange.Exchange
	source   SignalSource
	notifier notification.Notifier

	spec *domain.ContractSpec

	mu          sync.Mutex
	initialized bool
	running     bool
	cancel      context.CancelFunc
	brackets    map[domain.PositionSide]bracket

	lastTicker   *domain.Ticker
	lastTickerAt time.Time
}

// NewLiveTrader는 새로운 트레이더를 생성합니다
func NewLiveTrader(cfg Config, ex exchange.Exchange, source SignalSource, notifier notification.Notifier) *LiveTrader {
	return &LiveTrader{
		cfg:      cfg.withDefaults(),
		ex:       ex,
		source:   source,
		notifier: notifier,
		brackets: make(map[domain.PositionSide]bracket),
	}
}

// Config는 트레이더 설정의 복사본을 반환합니다
func (t *LiveTrader) Config() Config {
	return t.cfg
}

// Initialize는 거래 환경을 준비합니다.
// 보증금 모드와 레버리지를 설정하고, 자격 증명과 계약 정보를 확인합니다.
func (t *LiveTrader) Initialize(ctx context.Context) error {
	if err := t.ex.Initialize(ctx); err != nil {
		return NewTraderError(t.cfg.Symbol, "initialize", err)
	}

	if err := t.ex.SetMarginMode(ctx, t.cfg.Symbol, domain.CrossedMargin); err != nil {
		return NewTraderError(t.cfg.Symbol, "set_margin_mode", err)
	}

	if err := t.ex.SetLeverage(ctx, t.cfg.Symbol, t.cfg.Leverage); err != nil {
		return NewTraderError(t.cfg.Symbol, "set_leverage", err)
	}

	spec, err := t.ex.GetContractSpec(ctx, t.cfg.Symbol)
	if err != nil {
		return NewTraderError(t.cfg.Symbol, "contract_spec", err)
	}
	t.spec = spec

	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()

	log.Printf("트레이더 초기화 완료 [심볼: %s, 서브 계정: %s, 레버리지: %dx]",
		t.cfg.Symbol, t.cfg.SubAccount, t.cfg.Leverage)
	return nil
}

// StartTrading은 취소될 때까지 거래 루프를 실행합니다
func (t *LiveTrader) StartTrading(ctx context.Context) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.running = true
	t.cancel = cancel
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return nil
		case <-ticker.C:
		}

		if err := t.step(loopCtx); err != nil {
			if loopCtx.Err() != nil {
				return nil
			}
			if isFatal(err) {
				return err
			}
			// 일시적/의미적 오류는 알리고 다음 주기에 계속합니다
			log.Printf("거래 루프 오류 [심볼: %s]: %v", t.cfg.Symbol, err)
			t.notifyError(err)
		}
	}
}

// ObserveTicker는 웹소켓 스트림 등 외부 피드가 밀어 넣는 시세를 받아둡니다.
// 신선한 시세가 있으면 폴링 주기에서 REST 조회를 생략합니다.
func (t *LiveTrader) ObserveTicker(ticker domain.Ticker) {
	if ticker.Symbol != t.cfg.Symbol {
		return
	}
	t.mu.Lock()
	t.lastTicker = &ticker
	t.lastTickerAt = time.Now()
	t.mu.Unlock()
}

// freshTicker는 스트림 시세가 신선하면 그것을, 아니면 REST 조회 결과를 반환합니다
func (t *LiveTrader) freshTicker(ctx context.Context) (*domain.Ticker, error) {
	t.mu.Lock()
	cached := t.lastTicker
	age := time.Since(t.lastTickerAt)
	t.mu.Unlock()

	if cached != nil && age < 2*t.cfg.PollInterval {
		return cached, nil
	}
	return t.ex.GetMarketTicker(ctx, t.cfg.Symbol)
}

// step은 한 번의 폴링 주기를 처리합니다
func (t *LiveTrader) step(ctx context.Context) error {
	market, err := t.freshTicker(ctx)
	if err != nil {
		return fmt.Errorf("시세 조회 실패: %w", err)
	}

	if err := t.manageBrackets(ctx, market.Last); err != nil {
		return err
	}

	signal, err := t.source.CheckNewEntry(ctx, t.ex, *market)
	if err != nil {
		return fmt.Errorf("신호 확인 실패: %w", err)
	}
	if signal == nil || !signal.HasSide() {
		return nil
	}

	return t.executeEntry(ctx, signal, market.Last)
}

// executeEntry는 진입 신호를 주문으로 실행합니다
func (t *LiveTrader) executeEntry(ctx context.Context, signal *domain.EntrySignal, lastPrice decimal.Decimal) error {
	// 같은 방향 포지션이 이미 있으면 중복 진입하지 않습니다
	positions, err := t.ex.GetPositions(ctx, t.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("포지션 확인 실패: %w", err)
	}
	for _, p := range positions {
		if p.Side == signal.Side {
			return nil
		}
	}

	quantity, err := t.positionSize(ctx, lastPrice)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			log.Printf("진입 보류 [심볼: %s, 방향: %s]: %v", t.cfg.Symbol, signal.Side, err)
			t.notifyError(NewTraderError(t.cfg.Symbol, "sizing", err))
			return nil
		}
		return err
	}

	order := domain.OrderRequest{
		Symbol: t.cfg.Symbol,
		Side:   domain.OrderSideForEntry(signal.Side),
		Type:   domain.Market,
		Amount: quantity,
	}

	ack, err := t.ex.PlaceOrder(ctx, order)
	if err != nil {
		if isFatal(err) {
			return err
		}
		// 주문 거절은 알림 후 계속합니다
		t.notifyError(NewTraderError(t.cfg.Symbol, "place_order", err))
		return nil
	}

	confirmed, err := t.confirmPosition(ctx, signal.Side)
	if err != nil {
		return err
	}

	entryPrice := lastPrice
	if confirmed != nil && !confirmed.EntryPrice.IsZero() {
		entryPrice = confirmed.EntryPrice
	}

	stopLoss, takeProfit := t.bracketPrices(signal.Side, entryPrice)
	t.mu.Lock()
	t.brackets[signal.Side] = bracket{entryPrice: entryPrice, stopLoss: stopLoss, takeProfit: takeProfit}
	t.mu.Unlock()

	log.Printf("진입 완료 [심볼: %s, 방향: %s, 수량: %s, 주문: %s]",
		t.cfg.Symbol, signal.Side, quantity, ack.OrderID)

	if t.notifier != nil {
		if err := t.notifier.SendTradeInfo(notification.TradeInfo{
			Symbol:        t.cfg.Symbol,
			Side:          signal.Side,
			SubAccount:    t.cfg.SubAccount,
			Quantity:      quantity,
			EntryPrice:    entryPrice,
			StopLoss:      stopLoss,
			TakeProfit:    takeProfit,
			PositionValue: quantity.Mul(entryPrice),
			Leverage:      t.cfg.Leverage,
		}); err != nil {
			log.Printf("거래 알림 전송 실패: %v", err)
		}
	}

	return nil
}

// positionSize는 가용 잔고에서 주문 수량을 계산합니다
func (t *LiveTrader) positionSize(ctx context.Context, price decimal.Decimal) (decimal.Decimal, error) {
	balances, err := t.ex.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("잔고 조회 실패: %w", err)
	}

	usdt, ok := balances["USDT"]
	if !ok || usdt.Free.IsZero() {
		return decimal.Zero, ErrInsufficientBalance
	}

	base := usdt.Free
	if t.cfg.InitialCapital.IsPositive() && base.GreaterThan(t.cfg.InitialCapital) {
		base = t.cfg.InitialCapital
	}

	notional := base.
		Mul(t.cfg.AllocationPct).
		Mul(decimal.NewFromInt(int64(t.cfg.Leverage)))
	quantity := t.spec.QuantizeQuantity(notional.Div(price))

	if quantity.LessThan(t.spec.MinTradeNum) {
		return decimal.Zero, ErrInsufficientBalance
	}
	if !t.spec.MinTradeUSDT.IsZero() && quantity.Mul(price).LessThan(t.spec.MinTradeUSDT) {
		return decimal.Zero, ErrInsufficientBalance
	}

	return quantity, nil
}

// confirmPosition은 주문 후 포지션이 잡혔는지 제한된 횟수만큼 확인합니다
func (t *LiveTrader) confirmPosition(ctx context.Context, side domain.PositionSide) (*domain.Position, error) {
	for attempt := 1; attempt <= t.cfg.ConfirmAttempts; attempt++ {
		positions, err := t.ex.GetPositions(ctx, t.cfg.Symbol)
		if err == nil {
			for i := range positions {
				if positions[i].Side == side {
					return &positions[i], nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.cfg.ConfirmDelay):
		}
	}

	log.Printf("포지션 확인 실패, 다음 폴링에서 재확인합니다 [심볼: %s, 방향: %s]", t.cfg.Symbol, side)
	return nil, nil
}

// bracketPrices는 진입가에서 손절/익절 가격을 계산합니다
func (t *LiveTrader) bracketPrices(side domain.PositionSide, entryPrice decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if t.cfg.StopLossPct.IsZero() && t.cfg.TakeProfitPct.IsZero() {
		return decimal.Zero, decimal.Zero
	}

	one := decimal.NewFromInt(1)
	var stopLoss, takeProfit decimal.Decimal
	if side == domain.LongPosition {
		stopLoss = entryPrice.Mul(one.Sub(t.cfg.StopLossPct))
		takeProfit = entryPrice.Mul(one.Add(t.cfg.TakeProfitPct))
	} else {
		stopLoss = entryPrice.Mul(one.Add(t.cfg.StopLossPct))
		takeProfit = entryPrice.Mul(one.Sub(t.cfg.TakeProfitPct))
	}

	return t.spec.QuantizePrice(stopLoss), t.spec.QuantizePrice(takeProfit)
}

// manageBrackets는 현재가가 손절/익절 가격을 넘었는지 확인하고 넘었으면 청산합니다
func (t *LiveTrader) manageBrackets(ctx context.Context, lastPrice decimal.Decimal) error {
	t.mu.Lock()
	tracked := make(map[domain.PositionSide]bracket, len(t.brackets))
	for side, b := range t.brackets {
		tracked[side] = b
	}
	t.mu.Unlock()

	for side, b := range tracked {
		if b.stopLoss.IsZero() && b.takeProfit.IsZero() {
			continue
		}

		crossed := false
		var reason string
		if side == domain.LongPosition {
			if !b.stopLoss.IsZero() && lastPrice.LessThanOrEqual(b.stopLoss) {
				crossed, reason = true, "손절"
			} else if !b.takeProfit.IsZero() && lastPrice.GreaterThanOrEqual(b.takeProfit) {
				crossed, reason = true, "익절"
			}
		} else {
			if !b.stopLoss.IsZero() && lastPrice.GreaterThanOrEqual(b.stopLoss) {
				crossed, reason = true, "손절"
			} else if !b.takeProfit.IsZero() && lastPrice.LessThanOrEqual(b.takeProfit) {
				crossed, reason = true, "익절"
			}
		}

		if !crossed {
			continue
		}

		if _, err := t.ex.ClosePosition(ctx, t.cfg.Symbol, side); err != nil {
			if isFatal(err) {
				return err
			}
			t.notifyError(NewTraderError(t.cfg.Symbol, "close_position", err))
			continue
		}

		t.mu.Lock()
		delete(t.brackets, side)
		t.mu.Unlock()

		log.Printf("%s 청산 완료 [심볼: %s, 방향: %s, 가격: %s]", reason, t.cfg.Symbol, side, lastPrice)
		t.notifyInfo(fmt.Sprintf("%s 청산: %s %s @ %s", reason, t.cfg.Symbol, side, lastPrice))
	}

	return nil
}

// StopTrading은 거래 루프에 협력적 취소를 요청합니다. 멱등합니다.
func (t *LiveTrader) StopTrading() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Positions는 현재 열린 포지션 스냅샷을 반환합니다
func (t *LiveTrader) Positions(ctx context.Context) ([]domain.Position, error) {
	return t.ex.GetPositions(ctx, t.cfg.Symbol)
}

// StrategicBalance는 이 트레이더 서브 계정의 USDT 잔고를 반환합니다
func (t *LiveTrader) StrategicBalance(ctx context.Context) (domain.Balance, error) {
	balances, err := t.ex.GetBalance(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	return balances["USDT"], nil
}

// UnrealizedPnL은 열린 포지션들의 미실현 손익 합계를 반환합니다
func (t *LiveTrader) UnrealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	positions, err := t.ex.GetPositions(ctx, t.cfg.Symbol)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.UnrealizedPnL)
	}
	return total, nil
}

func (t *LiveTrader) notifyError(err error) {
	if t.notifier == nil {
		return
	}
	if sendErr := t.notifier.SendError(err); sendErr != nil {
		log.Printf("에러 알림 전송 실패: %v", sendErr)
	}
}

func (t *LiveTrader) notifyInfo(message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.SendInfo(message); err != nil {
		log.Printf("정보 알림 전송 실패: %v", err)
	}
}

// isFatal은 거래 루프를 중단해야 하는 오류인지 판별합니다.
// 인증 거부 등 복구 불가능한 API 오류만 치명적으로 봅니다.
func isFatal(err error) bool {
	var apiErr *bitget.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus == 401 || apiErr.HTTPStatus == 403
	}
	return false
}
