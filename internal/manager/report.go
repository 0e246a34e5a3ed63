package manager

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/harmony"
)

// BuildPnLReport는 주기 성과 알림 본문을 생성합니다.
// PnL 요약 줄의 형식은 운영 도구가 파싱하므로 고정되어 있습니다.
func BuildPnLReport(now time.Time, longPositions []domain.Position, longPnL decimal.Decimal,
	shortPositions []domain.Position, shortPnL decimal.Decimal, analysis *harmony.Analysis) string {

	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 포지션 성과 보고 (%s)\n", now.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Long PnL: %+.2f USDT (%d positions)\n",
		longPnL.InexactFloat64(), len(longPositions)))
	b.WriteString(fmt.Sprintf("Short PnL: %+.2f USDT (%d positions)\n",
		shortPnL.InexactFloat64(), len(shortPositions)))
	b.WriteString(fmt.Sprintf("Total PnL: %+.2f USDT\n",
		longPnL.Add(shortPnL).InexactFloat64()))

	writePositionList(&b, longPositions)
	writePositionList(&b, shortPositions)

	if analysis != nil {
		b.WriteString(fmt.Sprintf("조화 점수: %.3f (%s)\n", analysis.HarmonyScore, analysis.HarmonyState))
		if len(analysis.Recommendations) > 0 {
			b.WriteString(fmt.Sprintf("권고: %s\n", analysis.Recommendations[0].Description))
		}
		if analysis.DivineAdvice != "" {
			b.WriteString(analysis.DivineAdvice + "\n")
		}
	}

	return b.String()
}

func writePositionList(b *strings.Builder, positions []domain.Position) {
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("%s | %s | %s | %s | %s\n",
			p.Symbol, p.Side, p.Contracts, p.EntryPrice, p.UnrealizedPnL))
	}
}
