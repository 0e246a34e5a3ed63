// Package manager는 롱/숏 두 방향 트레이더를 하나의 단위로 운영합니다.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/harmony"
	"github.com/assist-by/harmonia/internal/notification"
)

// State는 매니저의 수명 주기 상태를 정의합니다.
// 전이는 created → ready → running → stopped 순서로만 일어나고
// stopped에서는 빠져나오지 않습니다.
type State int

const (
	StateCreated State = iota
	StateReady
	StateRunning
	StateStopped
)

// String은 상태 이름을 반환합니다
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// 종료 코드
const (
	ExitNormal      = 0
	ExitLimitBreach = 2
)

// Trader는 매니저가 방향 트레이더에게 요구하는 동작을 정의합니다
type Trader interface {
	Initialize(ctx context.Context) error
	StartTrading(ctx context.Context) error
	StopTrading()
	Positions(ctx context.Context) ([]domain.Position, error)
	StrategicBalance(ctx context.Context) (domain.Balance, error)
	UnrealizedPnL(ctx context.Context) (decimal.Decimal, error)
}

// Config는 듀얼 매니저 설정을 정의합니다. 생성 후 변경하지 않습니다.
type Config struct {
	Symbol string

	// 두 서브 계정의 가용 잔고 합계가 이 값 밑으로 내려가면 거래를 중단합니다
	MinFreeBalanceLimit decimal.Decimal

	EnablePnLAlerts      bool
	PnLAlertInterval     time.Duration
	AccountCheckInterval time.Duration

	// 조화 분석에 쓰는 계좌 레버리지
	AdvisorLeverage int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.AccountCheckInterval <= 0 {
		cfg.AccountCheckInterval = time.Minute
	}
	if cfg.PnLAlertInterval <= 0 {
		cfg.PnLAlertInterval = 5 * time.Minute
	}
	if cfg.AdvisorLeverage < 1 {
		cfg.AdvisorLeverage = 1
	}
	return cfg
}

// DualManager는 롱/숏 트레이더와 모니터 루프를 구조적 동시성으로 실행합니다
type DualManager struct {
	cfg         Config
	longTrader  Trader
	shortTrader Trader
	advisor     *harmony.Advisor
	notifier    notification.Notifier

	mu        sync.Mutex
	state     State
	lastAlert time.Time
	exitCode  int
	cancel    context.CancelFunc
	stopped   bool
}

// NewDualManager는 새로운 듀얼 매니저를 생성합니다
func NewDualManager(cfg Config, longTrader, shortTrader Trader, advisor *harmony.Advisor, notifier notification.Notifier) *DualManager {
	return &DualManager{
		cfg:         cfg.withDefaults(),
		longTrader:  longTrader,
		shortTrader: shortTrader,
		advisor:     advisor,
		notifier:    notifier,
		state:       StateCreated,
		exitCode:    ExitNormal,
	}
}

// State는 현재 상태를 반환합니다
func (m *DualManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ExitCode는 프로세스 종료 코드를 반환합니다
func (m *DualManager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// advance는 상태를 앞으로만 전이시킵니다
func (m *DualManager) advance(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next > m.state {
		m.state = next
	}
}

// Initialize는 두 트레이더를 초기화합니다. 어느 한쪽 실패도 치명적입니다.
func (m *DualManager) Initialize(ctx context.Context) error {
	if m.State() != StateCreated {
		return fmt.Errorf("초기화할 수 없는 상태입니다: %s", m.State())
	}

	if err := m.longTrader.Initialize(ctx); err != nil {
		return fmt.Errorf("롱 트레이더 초기화 실패: %w", err)
	}
	if err := m.shortTrader.Initialize(ctx); err != nil {
		return fmt.Errorf("숏 트레이더 초기화 실패: %w", err)
	}

	m.advance(StateReady)
	log.Printf("듀얼 매니저 초기화 완료 [심볼: %s]", m.cfg.Symbol)
	return nil
}

// CheckAccountLimit는 두 서브 계정의 가용 잔고 합계가 한도 이상인지 확인합니다.
// 담보로 잠긴 금액은 합계에 들어가지 않습니다. 거래소 오류 시에는 경고만 남기고
// true를 반환합니다. 일시적 RPC 실패가 살아 있는 포지션을 죽여서는 안 됩니다.
func (m *DualManager) CheckAccountLimit(ctx context.Context) bool {
	longBalance, err := m.longTrader.StrategicBalance(ctx)
	if err != nil {
		log.Printf("경고: 롱 계정 잔고 조회 실패, 한도 확인을 건너뜁니다: %v", err)
		return true
	}

	shortBalance, err := m.shortTrader.StrategicBalance(ctx)
	if err != nil {
		log.Printf("경고: 숏 계정 잔고 조회 실패, 한도 확인을 건너뜁니다: %v", err)
		return true
	}

	sumFree := longBalance.Free.Add(shortBalance.Free)
	return sumFree.GreaterThanOrEqual(m.cfg.MinFreeBalanceLimit)
}

// StartTrading은 롱 루프, 숏 루프, 모니터 루프를 동시에 실행합니다.
// 어느 하나가 실패하면 나머지가 취소되고 실패가 반환됩니다.
func (m *DualManager) StartTrading(ctx context.Context) error {
	if m.State() != StateReady {
		return fmt.Errorf("시작할 수 없는 상태입니다: %s", m.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.state = StateRunning
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return m.longTrader.StartTrading(gctx)
	})
	g.Go(func() error {
		return m.shortTrader.StartTrading(gctx)
	})
	g.Go(func() error {
		return m.monitorPerformance(gctx)
	})

	err := g.Wait()
	m.StopTrading()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// StopTrading은 두 트레이더를 동시에 멈추고 종료 알림을 한 번 보냅니다.
// 두 번째 호출부터는 아무 일도 하지 않습니다.
func (m *DualManager) StopTrading() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range []Trader{m.longTrader, m.shortTrader} {
		wg.Add(1)
		go func(t Trader) {
			defer wg.Done()
			t.StopTrading()
		}(t)
	}
	wg.Wait()

	if cancel != nil {
		cancel()
	}

	m.advance(StateStopped)
	m.sendAlert(m.shutdownReport())
	log.Printf("듀얼 매니저 중지 완료 [심볼: %s]", m.cfg.Symbol)
}

// shutdownReport는 종료 시점의 최종 손익 요약을 만듭니다
func (m *DualManager) shutdownReport() string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	total := decimal.Zero
	for _, t := range []Trader{m.longTrader, m.shortTrader} {
		pnl, err := t.UnrealizedPnL(ctx)
		if err != nil {
			continue
		}
		total = total.Add(pnl)
	}

	return fmt.Sprintf("🛑 거래 중단 [심볼: %s]\nTotal PnL: %+.2f USDT",
		m.cfg.Symbol, total.InexactFloat64())
}

// monitorPerformance는 주기적으로 지표를 수집하고 한도를 확인하며 알림을 보냅니다
func (m *DualManager) monitorPerformance(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.AccountCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		longPositions, longPnL := m.traderMetrics(ctx, m.longTrader)
		shortPositions, shortPnL := m.traderMetrics(ctx, m.shortTrader)

		if !m.CheckAccountLimit(ctx) {
			log.Printf("가용 잔고가 한도 밑으로 내려갔습니다 [한도: %s]", m.cfg.MinFreeBalanceLimit)
			m.mu.Lock()
			m.exitCode = ExitLimitBreach
			m.mu.Unlock()
			m.sendAlert(fmt.Sprintf("⚠️ 가용 잔고 한도 위반으로 거래를 중단합니다 [한도: %s USDT]",
				m.cfg.MinFreeBalanceLimit))
			m.StopTrading()
			return nil
		}

		analysis := m.analyzeHarmony(ctx, longPositions, shortPositions)
		if analysis != nil && analysis.HarmonyState == domain.StateChaotic {
			m.sendAlert(fmt.Sprintf("⚠️ 포트폴리오 조화가 혼돈 상태입니다 (점수: %.3f). %s",
				analysis.HarmonyScore, analysis.DivineAdvice))
		}

		m.mu.Lock()
		due := m.cfg.EnablePnLAlerts && time.Since(m.lastAlert) >= m.cfg.PnLAlertInterval
		if due {
			m.lastAlert = time.Now()
		}
		m.mu.Unlock()

		if due {
			report := BuildPnLReport(time.Now(), longPositions, longPnL, shortPositions, shortPnL, analysis)
			m.sendAlert(report)
		}
	}
}

// traderMetrics는 트레이더의 포지션과 미실현 손익을 조회합니다.
// 오류가 나면 빈 스냅샷으로 취급하고 루프를 계속합니다.
func (m *DualManager) traderMetrics(ctx context.Context, t Trader) ([]domain.Position, decimal.Decimal) {
	positions, err := t.Positions(ctx)
	if err != nil {
		log.Printf("포지션 조회 실패, 빈 스냅샷으로 계속합니다: %v", err)
		return nil, decimal.Zero
	}

	pnl, err := t.UnrealizedPnL(ctx)
	if err != nil {
		log.Printf("손익 조회 실패, 빈 스냅샷으로 계속합니다: %v", err)
		return nil, decimal.Zero
	}

	return positions, pnl
}

// analyzeHarmony는 병합한 포지션 스냅샷으로 조화 분석을 수행합니다
func (m *DualManager) analyzeHarmony(ctx context.Context, longPositions, shortPositions []domain.Position) *harmony.Analysis {
	if m.advisor == nil {
		return nil
	}

	balance := decimal.Zero
	for _, t := range []Trader{m.longTrader, m.shortTrader} {
		b, err := t.StrategicBalance(ctx)
		if err != nil {
			return nil
		}
		balance = balance.Add(b.Total)
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	merged := make([]domain.Position, 0, len(longPositions)+len(shortPositions))
	merged = append(merged, longPositions...)
	merged = append(merged, shortPositions...)

	analysis, err := m.advisor.AnalyzePositions(merged, balance, m.cfg.AdvisorLeverage, time.Now())
	if err != nil {
		log.Printf("조화 분석 실패: %v", err)
		return nil
	}
	return analysis
}

// sendAlert는 알림 전송 실패를 기록만 하고 거래에 영향을 주지 않습니다
func (m *DualManager) sendAlert(message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SendAlert(message); err != nil {
		log.Printf("알림 전송 실패: %v", err)
	}
}
