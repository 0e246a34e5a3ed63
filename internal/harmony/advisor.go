package harmony

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
)

const (
	// Phi는 황금비입니다
	Phi = math.Phi

	// MaxAccountRisk는 계좌 대비 목표 총 노출 비율(6.18%)입니다
	MaxAccountRisk = 0.0618

	// historyLimit는 추세 계산용 점수 기록의 최대 길이입니다
	historyLimit = 64

	// trendWindow는 추세 기울기를 계산할 때 보는 최근 점수 개수입니다
	trendWindow = 8
)

// 가중치: 노출 정렬, 롱/숏 균형, 개별 포지션 φ 근접도, 개수 조화
const (
	weightExposure  = 0.35
	weightBalance   = 0.25
	weightProximity = 0.30
	weightCount     = 0.10
)

// phiTargets는 개별 포지션 크기의 목표 비율 집합 {φ⁻⁵ … φ⁻¹}입니다
var phiTargets = []float64{
	math.Pow(Phi, -5),
	math.Pow(Phi, -4),
	math.Pow(Phi, -3),
	math.Pow(Phi, -2),
	math.Pow(Phi, -1),
}

// fibonacciCounts는 포지션 개수의 조화 기준 집합입니다
var fibonacciCounts = []int{1, 2, 3, 5, 8}

// advicePhrases는 상태별 고정 문구 집합입니다. 문구 집합 자체가 계약의 일부입니다.
var advicePhrases = map[domain.HarmonyState][]string{
	domain.StateDivine: {
		"포트폴리오가 황금비와 완전한 조화를 이루고 있습니다.",
		"지금의 배분을 유지하세요. 균형이 완성에 가깝습니다.",
	},
	domain.StateHarmonic: {
		"배분이 황금비에 가깝습니다. 작은 조정이면 충분합니다.",
		"조화로운 상태입니다. 권고 사항만 가볍게 확인하세요.",
	},
	domain.StateNeutral: {
		"균형도 불균형도 아닌 중립 상태입니다. 권고 사항을 검토하세요.",
		"배분이 목표에서 벗어나기 시작했습니다. 리밸런싱을 고려하세요.",
	},
	domain.StateDissonant: {
		"배분이 황금비에서 크게 벗어났습니다. 리밸런싱이 필요합니다.",
		"불협화 상태입니다. 노출과 크기 권고를 우선 적용하세요.",
	},
	domain.StateChaotic: {
		"포트폴리오가 혼돈 상태입니다. 즉시 노출을 줄이세요.",
		"배분이 통제 범위를 벗어났습니다. 포지션 정리를 검토하세요.",
	},
}

// Advisor는 포지션 조화 분석기입니다.
// AnalyzePositions는 입력만으로 결정되는 순수 계산이고, 인스턴스는
// 추세 노출을 위해 과거 점수의 제한된 기록만 보관합니다.
type Advisor struct {
	mu      sync.Mutex
	history []float64
}

// NewAdvisor는 새로운 분석기를 생성합니다
func NewAdvisor() *Advisor {
	return &Advisor{}
}

// AnalyzePositions는 포지션 스냅샷을 분석하여 조화 점수와 권고를 만듭니다.
// asOf는 스냅샷 시각이며 조언 문구 선택에만 쓰입니다.
func (a *Advisor) AnalyzePositions(positions []domain.Position, accountBalance decimal.Decimal, leverage int, asOf time.Time) (*Analysis, error) {
	if accountBalance.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("계좌 잔고는 0보다 커야 합니다: %s", accountBalance)
	}
	if leverage < 1 {
		return nil, fmt.Errorf("레버리지는 1 이상이어야 합니다: %d", leverage)
	}

	metrics := computeMetrics(positions, accountBalance, leverage)
	score := computeScore(positions, metrics, accountBalance)
	state := classifyState(score)

	analysis := &Analysis{
		HarmonyScore:       score,
		HarmonyState:       state,
		Recommendations:    buildRecommendations(positions, metrics, accountBalance),
		IdealPositionSizes: idealSizes(accountBalance),
		PositionMetrics:    metrics,
		DivineAdvice:       divineAdvice(state, asOf),
	}

	a.mu.Lock()
	a.history = append(a.history, score)
	if len(a.history) > historyLimit {
		a.history = a.history[len(a.history)-historyLimit:]
	}
	a.mu.Unlock()

	return analysis, nil
}

// HarmonyTrend는 최근 점수들의 최소제곱 기울기로 추세를 반환합니다
func (a *Advisor) HarmonyTrend() Trend {
	a.mu.Lock()
	scores := append([]float64(nil), a.history...)
	a.mu.Unlock()

	if len(scores) > trendWindow {
		scores = scores[len(scores)-trendWindow:]
	}
	if len(scores) < 2 {
		return Trend{Direction: TrendStable, Slope: 0}
	}

	slope := leastSquaresSlope(scores)
	direction := TrendStable
	switch {
	case slope > 0.005:
		direction = TrendImproving
	case slope < -0.005:
		direction = TrendDegrading
	}

	return Trend{Direction: direction, Slope: slope}
}

func computeMetrics(positions []domain.Position, accountBalance decimal.Decimal, leverage int) PositionMetrics {
	totalExposure := decimal.Zero
	longCount, shortCount := 0, 0
	for _, p := range positions {
		totalExposure = totalExposure.Add(p.Notional.Div(decimal.NewFromInt(int64(leverage))))
		switch p.Side {
		case domain.LongPosition:
			longCount++
		case domain.ShortPosition:
			shortCount++
		}
	}

	// 숏이 하나도 없으면 비율은 무한대로 취급합니다
	ratio := math.Inf(1)
	if shortCount > 0 {
		ratio = float64(longCount) / float64(shortCount)
	}

	return PositionMetrics{
		PositionCount:    len(positions),
		TotalExposure:    totalExposure,
		TotalExposurePct: totalExposure.Div(accountBalance).InexactFloat64(),
		LongShortRatio:   ratio,
	}
}

// computeScore는 네 개의 부분 점수를 가중 평균합니다.
// 적용할 수 없는 부분 점수는 가중치 0으로 빠지고 나머지를 재정규화합니다.
func computeScore(positions []domain.Position, metrics PositionMetrics, accountBalance decimal.Decimal) float64 {
	longCount, shortCount := sideCounts(positions)

	weightedSum := weightExposure * exposureScore(metrics.TotalExposurePct)
	totalWeight := weightExposure

	if longCount > 0 && shortCount > 0 {
		weightedSum += weightBalance * balanceScore(metrics.LongShortRatio)
		totalWeight += weightBalance
	}

	if len(positions) > 0 {
		weightedSum += weightProximity * proximityScore(positions, accountBalance)
		totalWeight += weightProximity
	}

	weightedSum += weightCount * countScore(metrics.PositionCount)
	totalWeight += weightCount

	return clamp01(weightedSum / totalWeight)
}

func exposureScore(exposurePct float64) float64 {
	return 1 - math.Min(1, math.Abs(exposurePct-MaxAccountRisk)/MaxAccountRisk)
}

func balanceScore(ratio float64) float64 {
	if ratio <= 0 || math.IsInf(ratio, 1) {
		return 0
	}
	logPhi := math.Log(Phi)
	return 1 - math.Min(1, math.Abs(math.Log(ratio)-logPhi)/logPhi)
}

func proximityScore(positions []domain.Position, accountBalance decimal.Decimal) float64 {
	sum := 0.0
	for _, p := range positions {
		pct := p.Notional.Div(accountBalance).InexactFloat64()
		_, deviation := nearestPhiTarget(pct)
		sum += 1 - math.Min(1, deviation)
	}
	return sum / float64(len(positions))
}

func countScore(count int) float64 {
	best := math.MaxInt32
	for _, fib := range fibonacciCounts {
		if d := abs(count - fib); d < best {
			best = d
		}
	}
	return math.Max(0, 1-float64(best)/2)
}

// nearestPhiTarget은 가장 가까운 φ 목표 비율과 상대 편차를 반환합니다
func nearestPhiTarget(sizePct float64) (float64, float64) {
	nearest := phiTargets[0]
	bestDist := math.Abs(sizePct - nearest)
	for _, target := range phiTargets[1:] {
		if d := math.Abs(sizePct - target); d < bestDist {
			nearest, bestDist = target, d
		}
	}
	return nearest, bestDist / nearest
}

func buildRecommendations(positions []domain.Position, metrics PositionMetrics, accountBalance decimal.Decimal) []Recommendation {
	var recs []Recommendation

	if metrics.TotalExposurePct > MaxAccountRisk*1.10 {
		deviation := (metrics.TotalExposurePct - MaxAccountRisk) / MaxAccountRisk
		recs = append(recs, Recommendation{
			Type: RecommendExposure,
			Description: fmt.Sprintf("총 노출 %.2f%%가 목표 %.2f%%를 초과했습니다",
				metrics.TotalExposurePct*100, MaxAccountRisk*100),
			Confidence:         math.Min(1, deviation),
			CurrentExposurePct: metrics.TotalExposurePct,
			TargetExposurePct:  MaxAccountRisk,
		})
	}

	longCount, shortCount := sideCounts(positions)
	if longCount > 0 && shortCount > 0 {
		deviation := math.Abs(metrics.LongShortRatio-Phi) / Phi
		if deviation > 0.20 {
			recs = append(recs, Recommendation{
				Type: RecommendLongShortBalance,
				Description: fmt.Sprintf("롱/숏 비율 %.2f가 황금비 %.3f에서 벗어났습니다",
					metrics.LongShortRatio, Phi),
				Confidence:   math.Min(1, deviation),
				CurrentRatio: metrics.LongShortRatio,
				TargetRatio:  Phi,
			})
		}
	}

	for _, p := range positions {
		pct := p.Notional.Div(accountBalance).InexactFloat64()
		target, deviation := nearestPhiTarget(pct)
		if deviation <= 0.15 {
			continue
		}
		recs = append(recs, Recommendation{
			Type: RecommendPositionSize,
			Description: fmt.Sprintf("%s %s 포지션 크기 %.2f%%를 %.2f%%로 조정하세요",
				p.Symbol, p.Side, pct*100, target*100),
			Confidence:     math.Min(1, deviation),
			PositionSymbol: p.Symbol,
			CurrentSizePct: pct,
			TargetSizePct:  target,
			TargetSize:     accountBalance.Mul(decimal.NewFromFloat(target)),
		})
	}

	return recs
}

func idealSizes(accountBalance decimal.Decimal) []IdealSize {
	entries := []struct {
		relation string
		pct      float64
	}{
		{"φ⁻⁵", phiTargets[0]},
		{"φ⁻⁴", phiTargets[1]},
		{"φ⁻³", phiTargets[2]},
		{"φ⁻²", phiTargets[3]},
		{"φ⁻¹", phiTargets[4]},
		{"계좌 위험 한도 (6.18%)", MaxAccountRisk},
	}

	sizes := make([]IdealSize, 0, len(entries))
	for _, e := range entries {
		sizes = append(sizes, IdealSize{
			FibonacciRelation: e.relation,
			SizePct:           e.pct,
			AbsoluteSize:      accountBalance.Mul(decimal.NewFromFloat(e.pct)),
			RiskCategory:      riskCategory(e.pct),
		})
	}
	return sizes
}

// riskCategory는 계좌 대비 크기 비율을 위험 구간으로 분류합니다
func riskCategory(sizePct float64) domain.RiskCategory {
	switch {
	case sizePct <= 0.02:
		return domain.RiskMicro
	case sizePct <= 0.05:
		return domain.RiskLow
	case sizePct <= 0.10:
		return domain.RiskModerate
	case sizePct <= 0.20:
		return domain.RiskHigh
	default:
		return domain.RiskExtreme
	}
}

// classifyState는 점수를 피보나치 비율 경계로 상태에 대응시킵니다
func classifyState(score float64) domain.HarmonyState {
	switch {
	case score >= 0.854:
		return domain.StateDivine
	case score >= 0.618:
		return domain.StateHarmonic
	case score >= 0.382:
		return domain.StateNeutral
	case score >= 0.236:
		return domain.StateDissonant
	default:
		return domain.StateChaotic
	}
}

// divineAdvice는 상태별 문구 집합에서 스냅샷 시각의 해시로 하나를 고릅니다
func divineAdvice(state domain.HarmonyState, asOf time.Time) string {
	phrases := advicePhrases[state]
	if len(phrases) == 0 {
		return ""
	}

	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(asOf.UnixNano(), 10)))
	return phrases[h.Sum64()%uint64(len(phrases))]
}

func leastSquaresSlope(scores []float64) float64 {
	n := float64(len(scores))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range scores {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func sideCounts(positions []domain.Position) (int, int) {
	longCount, shortCount := 0, 0
	for _, p := range positions {
		switch p.Side {
		case domain.LongPosition:
			longCount++
		case domain.ShortPosition:
			shortCount++
		}
	}
	return longCount, shortCount
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
