package main

import (
	"context"
	"flag"
	"log"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/assist-by/harmonia/internal/config"
	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/exchange/bitget"
	"github.com/assist-by/harmonia/internal/harmony"
	"github.com/assist-by/harmonia/internal/manager"
	"github.com/assist-by/harmonia/internal/notification"
	"github.com/assist-by/harmonia/internal/notification/alertlog"
	"github.com/assist-by/harmonia/internal/notification/discord"
	"github.com/assist-by/harmonia/internal/trader"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 명령줄 플래그 정의
	minFreeBalance := flag.Float64("min-free-balance", 100.0, "두 서브 계정 가용 잔고 합계의 하한 (USDT)")
	accountMax := flag.Float64("account-max", 10000.0, "계좌 상한 (예약됨, 아직 적용되지 않음)")
	testnet := flag.Bool("testnet", false, "데모 트레이딩 사용 (환경변수 USE_TESTNET보다 우선)")
	symbol := flag.String("symbol", "", "거래 심볼 (기본값은 환경변수 SYMBOL)")
	longLeverage := flag.Int("long-leverage", 0, "롱 트레이더 레버리지")
	shortLeverage := flag.Int("short-leverage", 0, "숏 트레이더 레버리지")
	longSubAccount := flag.String("long-sub-account", "", "롱 트레이더 서브 계정 이름")
	shortSubAccount := flag.String("short-sub-account", "", "숏 트레이더 서브 계정 이름")
	initialCapital := flag.Float64("initial-capital", 0, "트레이더당 초기 자본 (USDT)")
	alertLogPath := flag.String("alert-log", "", "알림 저널 파일 경로 (비우면 비활성)")

	flag.Parse()

	// 로그 설정
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("듀얼 포지션 트레이더 시작...")

	// 설정 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("설정 로드 실패: %v", err)
		return 1
	}

	// 플래그가 주어지면 환경 설정을 덮어씁니다
	if *symbol != "" {
		cfg.Trading.Symbol = *symbol
	}
	if *longLeverage > 0 {
		cfg.Trading.LongLeverage = *longLeverage
	}
	if *shortLeverage > 0 {
		cfg.Trading.ShortLeverage = *shortLeverage
	}
	useTestnet := cfg.App.UseTestnet || *testnet

	longSub := *longSubAccount
	if longSub == "" {
		longSub = cfg.App.StrategicAccount + "_long"
	}
	shortSub := *shortSubAccount
	if shortSub == "" {
		shortSub = cfg.App.StrategicAccount + "_short"
	}

	_ = *accountMax // 상한은 아직 설정 항목으로만 존재합니다

	// 알림 채널 구성
	var notifier notification.Notifier = discord.NewClient(
		cfg.Discord.SignalWebhook,
		cfg.Discord.TradeWebhook,
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(5*time.Second),
	)
	if *alertLogPath != "" {
		journal, err := alertlog.Open(*alertLogPath, notifier)
		if err != nil {
			log.Printf("알림 저널 초기화 실패: %v", err)
			return 1
		}
		notifier = journal
	}

	// 같은 거래소 호스트를 향하는 두 클라이언트는 페이싱 게이트를 공유합니다
	limiter := rate.NewLimiter(rate.Limit(8), 16)

	newExchange := func(subAccount string) *bitget.Client {
		return bitget.NewClient(
			cfg.Bitget.APIKey,
			cfg.Bitget.SecretKey,
			cfg.Bitget.Passphrase,
			bitget.WithTestnet(useTestnet),
			bitget.WithRateLimiter(limiter),
			bitget.WithSubAccount(subAccount),
			bitget.WithTimeout(10*time.Second),
		)
	}

	registry := trader.DefaultRegistry()
	newSource := func() trader.SignalSource {
		source, err := registry.Create(trader.StrategicProfile, nil)
		if err != nil {
			log.Fatalf("신호 프로필 생성 실패: %v", err)
		}
		return source
	}

	capital := decimal.NewFromFloat(*initialCapital)
	allocation := decimal.NewFromFloat(cfg.Trading.RiskFraction)

	longTrader := trader.NewDirectionalTrader(domain.LongPosition, trader.Config{
		Symbol:         cfg.Trading.Symbol,
		InitialCapital: capital,
		Leverage:       cfg.Trading.LongLeverage,
		SubAccount:     longSub,
		Testnet:        useTestnet,
		StrategicOnly:  true,
		AllocationPct:  allocation,
	}, newExchange(longSub), newSource(), notifier)

	shortTrader := trader.NewDirectionalTrader(domain.ShortPosition, trader.Config{
		Symbol:         cfg.Trading.Symbol,
		InitialCapital: capital,
		Leverage:       cfg.Trading.ShortLeverage,
		SubAccount:     shortSub,
		Testnet:        useTestnet,
		StrategicOnly:  true,
		AllocationPct:  allocation,
	}, newExchange(shortSub), newSource(), notifier)

	mgr := manager.NewDualManager(manager.Config{
		Symbol:               cfg.Trading.Symbol,
		MinFreeBalanceLimit:  decimal.NewFromFloat(*minFreeBalance),
		EnablePnLAlerts:      true,
		PnLAlertInterval:     cfg.App.AlertInterval,
		AccountCheckInterval: cfg.App.MonitorInterval,
		AdvisorLeverage:      cfg.Trading.LongLeverage,
	}, longTrader, shortTrader, harmony.NewAdvisor(), notifier)

	// 시그널 처리
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	osSignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	interrupted := make(chan os.Signal, 1)
	go func() {
		sig := <-sigCh
		log.Printf("시그널 수신, 정리를 시작합니다: %v", sig)
		interrupted <- sig
		cancel()
	}()

	// 초기화와 실행
	if err := mgr.Initialize(ctx); err != nil {
		log.Printf("초기화 실패: %v", err)
		return 1
	}

	// 실시간 시세 스트림. 끊어져도 트레이더는 REST 폴링으로 동작합니다.
	stream := bitget.NewTickerStream(cfg.Trading.Symbol, func(t domain.Ticker) {
		longTrader.ObserveTicker(t)
		shortTrader.ObserveTicker(t)
	})
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("시세 스트림 종료: %v", err)
		}
	}()

	if err := mgr.StartTrading(ctx); err != nil {
		log.Printf("거래 루프 종료 (오류): %v", err)
		return 1
	}

	select {
	case sig := <-interrupted:
		if sig == syscall.SIGINT {
			return 130
		}
	default:
	}

	return mgr.ExitCode()
}
