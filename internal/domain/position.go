package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position은 거래소에서 조회한 포지션 스냅샷을 표현합니다.
// 진실의 원천은 항상 거래소이며, 이 구조체는 조회 시점의 값 객체일 뿐입니다.
type Position struct {
	Symbol           string          // 심볼 (예: BTCUSDT)
	Side             PositionSide    // 포지션 방향 (long/short)
	Contracts        decimal.Decimal // 계약 수량 (코인)
	Notional         decimal.Decimal // 명목 가치 (USDT, 계약 수량 × 마크 가격)
	EntryPrice       decimal.Decimal // 평균 진입가
	MarkPrice        decimal.Decimal // 마크 가격
	UnrealizedPnL    decimal.Decimal // 미실현 손익 (USDT)
	RealizedPnL      decimal.Decimal // 실현 손익 (USDT)
	Leverage         int             // 레버리지
	LiquidationPrice decimal.Decimal // 청산 가격
}

// Exposure는 레버리지를 반영한 실제 투입 증거금(USDT)을 반환합니다
func (p Position) Exposure() decimal.Decimal {
	if p.Leverage <= 0 {
		return p.Notional
	}
	return p.Notional.Div(decimal.NewFromInt(int64(p.Leverage)))
}

// Balance는 서브 계정의 잔고 정보를 표현합니다 (기준 통화: USDT)
type Balance struct {
	Free  decimal.Decimal // 사용 가능한 잔고
	Used  decimal.Decimal // 증거금 등에 잠긴 잔고
	Total decimal.Decimal // 총 잔고
}

// Consistent는 free + used == total 불변식이 허용 오차 내에서 성립하는지 확인합니다
func (b Balance) Consistent(tolerance decimal.Decimal) bool {
	diff := b.Free.Add(b.Used).Sub(b.Total).Abs()
	return diff.LessThanOrEqual(tolerance) && b.Free.Sign() >= 0
}

// Ticker는 심볼의 현재 시세 정보를 표현합니다
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal // 최근 체결가
	High      decimal.Decimal // 24시간 최고가
	Low       decimal.Decimal // 24시간 최저가
	Volume    decimal.Decimal // 24시간 거래량
	Timestamp time.Time
}
