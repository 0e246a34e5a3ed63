// Package harmony는 포지션 포트폴리오가 황금비 배분에 얼마나 가까운지 평가합니다.
package harmony

import (
	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
)

// PositionMetrics는 스냅샷에서 계산한 포트폴리오 지표를 정의합니다
type PositionMetrics struct {
	PositionCount    int
	TotalExposure    decimal.Decimal // Σ notional / leverage
	TotalExposurePct float64         // TotalExposure / account balance
	LongShortRatio   float64         // long 개수 / max(short 개수, 1); 숏이 없으면 +Inf
}

// RecommendationType은 리밸런싱 권고의 종류를 정의합니다
type RecommendationType string

const (
	RecommendExposure         RecommendationType = "exposure"
	RecommendLongShortBalance RecommendationType = "long_short_balance"
	RecommendPositionSize     RecommendationType = "position_size"
)

// Recommendation은 리밸런싱 권고 하나를 정의합니다.
// Type에 따라 채워지는 필드가 다릅니다.
type Recommendation struct {
	Type        RecommendationType
	Description string
	Confidence  float64 // [0,1], 편차에 비례

	// exposure
	CurrentExposurePct float64
	TargetExposurePct  float64

	// long_short_balance
	CurrentRatio float64
	TargetRatio  float64

	// position_size
	PositionSymbol string
	CurrentSizePct float64
	TargetSizePct  float64
	TargetSize     decimal.Decimal
}

// IdealSize는 φ 비율 기반의 이상적인 포지션 크기를 정의합니다
type IdealSize struct {
	FibonacciRelation string
	SizePct           float64
	AbsoluteSize      decimal.Decimal
	RiskCategory      domain.RiskCategory
}

// Analysis는 포트폴리오 조화 분석 결과를 정의합니다
type Analysis struct {
	HarmonyScore       float64 // [0,1]
	HarmonyState       domain.HarmonyState
	Recommendations    []Recommendation
	IdealPositionSizes []IdealSize
	PositionMetrics    PositionMetrics
	DivineAdvice       string
}

// TrendDirection은 조화 점수의 추세 방향을 정의합니다
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// Trend는 최근 조화 점수의 추세를 정의합니다
type Trend struct {
	Direction TrendDirection
	Slope     float64
}
