package notification

import (
	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
)

// Notifier는 알림 전송 인터페이스를 정의합니다
type Notifier interface {
	// SendAlert는 운영자 알림(성과 보고, 한도 위반 등)을 전송합니다
	SendAlert(message string) error

	// SendError는 에러 알림을 전송합니다
	SendError(err error) error

	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(message string) error

	// SendTradeInfo는 거래 실행 정보를 전송합니다
	SendTradeInfo(info TradeInfo) error
}

// TradeInfo는 거래 실행 정보를 정의합니다
type TradeInfo struct {
	Symbol        string              // 심볼 (예: BTCUSDT)
	Side          domain.PositionSide // long or short
	SubAccount    string              // 주문을 실행한 서브 계정
	Quantity      decimal.Decimal     // 계약 수량
	EntryPrice    decimal.Decimal     // 진입가
	StopLoss      decimal.Decimal     // 손절가
	TakeProfit    decimal.Decimal     // 익절가
	PositionValue decimal.Decimal     // 포지션 명목 가치 (USDT)
	Leverage      int                 // 사용 레버리지
}

// GetColorForSide는 포지션 방향에 따른 색상을 반환합니다
func GetColorForSide(side domain.PositionSide) int {
	switch side {
	case domain.LongPosition:
		return domain.ColorSuccess
	case domain.ShortPosition:
		return domain.ColorError
	default:
		return domain.ColorInfo
	}
}
