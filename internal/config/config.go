package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Bitget API 설정
	Bitget struct {
		APIKey     string `envconfig:"BITGET_API_KEY" required:"true"`
		SecretKey  string `envconfig:"BITGET_SECRET_KEY" required:"true"`
		Passphrase string `envconfig:"BITGET_PASSPHRASE" required:"true"`
	}

	// 디스코드 웹훅 설정
	Discord struct {
		SignalWebhook string `envconfig:"DISCORD_SIGNAL_WEBHOOK"`
		TradeWebhook  string `envconfig:"DISCORD_TRADE_WEBHOOK"`
		ErrorWebhook  string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook   string `envconfig:"DISCORD_INFO_WEBHOOK"`
	}

	// 애플리케이션 설정
	App struct {
		UseTestnet       bool          `envconfig:"USE_TESTNET" default:"false"`
		StrategicAccount string        `envconfig:"STRATEGIC_SUB_ACCOUNT_NAME" default:"strategic"`
		MonitorInterval  time.Duration `envconfig:"MONITOR_INTERVAL" default:"1m"`
		AlertInterval    time.Duration `envconfig:"ALERT_INTERVAL" default:"5m"`
	}

	// 거래 설정
	Trading struct {
		Symbol        string  `envconfig:"SYMBOL" default:"BTCUSDT"`
		LongLeverage  int     `envconfig:"LONG_LEVERAGE" default:"5"`
		ShortLeverage int     `envconfig:"SHORT_LEVERAGE" default:"5"`
		RiskFraction  float64 `envconfig:"RISK_FRACTION" default:"0.0618"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	// envconfig의 required 검사는 변수가 존재하면 빈 값도 통과시키므로
	// 자격 증명이 비어 있지 않은지는 여기서 확인합니다.
	if cfg.Bitget.APIKey == "" || cfg.Bitget.SecretKey == "" || cfg.Bitget.Passphrase == "" {
		return fmt.Errorf("bitget API 자격 증명이 비어 있습니다")
	}

	if cfg.Trading.LongLeverage < 1 || cfg.Trading.LongLeverage > 100 {
		return fmt.Errorf("롱 레버리지는 1 이상 100 이하이어야 합니다")
	}

	if cfg.Trading.ShortLeverage < 1 || cfg.Trading.ShortLeverage > 100 {
		return fmt.Errorf("숏 레버리지는 1 이상 100 이하이어야 합니다")
	}

	if cfg.Trading.RiskFraction <= 0 || cfg.Trading.RiskFraction > 1 {
		return fmt.Errorf("RISK_FRACTION은 0 초과 1 이하이어야 합니다")
	}

	if cfg.App.MonitorInterval < time.Second {
		return fmt.Errorf("MONITOR_INTERVAL은 1초 이상이어야 합니다")
	}

	if cfg.Trading.Symbol == "" {
		return fmt.Errorf("SYMBOL이 비어 있습니다")
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다.
func LoadConfig() (*Config, error) {
	// .env 파일은 있으면 로드하고, 없으면 환경변수만 사용합니다
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}
