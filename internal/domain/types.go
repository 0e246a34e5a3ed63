package domain

import "strings"

// PositionSide는 포지션 방향을 정의합니다
type PositionSide string

const (
	LongPosition  PositionSide = "long"
	ShortPosition PositionSide = "short"
)

// Opposite는 반대 방향의 포지션 사이드를 반환합니다
func (s PositionSide) Opposite() PositionSide {
	if s == LongPosition {
		return ShortPosition
	}
	return LongPosition
}

// IsValid는 포지션 사이드가 유효한 값인지 확인합니다
func (s PositionSide) IsValid() bool {
	return s == LongPosition || s == ShortPosition
}

// ParseHoldSide는 거래소가 반환하는 holdSide 문자열을 PositionSide로 변환합니다.
// 알 수 없는 값이면 두 번째 반환값이 false입니다.
func ParseHoldSide(holdSide string) (PositionSide, bool) {
	switch strings.ToLower(holdSide) {
	case "long", "buy":
		return LongPosition, true
	case "short", "sell":
		return ShortPosition, true
	default:
		return "", false
	}
}

// OrderSide는 주문 방향을 정의합니다
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderSideForEntry는 포지션 진입을 위한 주문 사이드를 반환합니다
func OrderSideForEntry(side PositionSide) OrderSide {
	if side == LongPosition {
		return Buy
	}
	return Sell
}

// OrderSideForExit는 포지션 청산을 위한 주문 사이드를 반환합니다
func OrderSideForExit(side PositionSide) OrderSide {
	if side == LongPosition {
		return Sell
	}
	return Buy
}

// OrderType은 주문 유형을 정의합니다
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// MarginMode는 보증금 모드를 정의합니다
type MarginMode string

const (
	CrossedMargin  MarginMode = "crossed"
	IsolatedMargin MarginMode = "isolated"
)

// HarmonyState는 포트폴리오 하모니 상태를 정의합니다
type HarmonyState string

const (
	StateDivine    HarmonyState = "DIVINE"
	StateHarmonic  HarmonyState = "HARMONIC"
	StateNeutral   HarmonyState = "NEUTRAL"
	StateDissonant HarmonyState = "DISSONANT"
	StateChaotic   HarmonyState = "CHAOTIC"
)

// RiskCategory는 포지션 크기에 따른 리스크 등급을 정의합니다
type RiskCategory string

const (
	RiskMicro    RiskCategory = "MICRO"
	RiskLow      RiskCategory = "LOW"
	RiskModerate RiskCategory = "MODERATE"
	RiskHigh     RiskCategory = "HIGH"
	RiskExtreme  RiskCategory = "EXTREME"
)

// NotificationColor는 알림 색상 코드를 정의합니다
const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0000FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)
