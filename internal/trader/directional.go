package trader

import (
	"context"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/exchange"
	"github.com/assist-by/harmonia/internal/notification"
)

// DirectionalTrader는 기본 트레이더에 방향 필터를 조합한 트레이더입니다.
// 상속 대신 신호 공급자를 DirectionalSource로 감싸는 방식으로 방향을 고정합니다.
type DirectionalTrader struct {
	*LiveTrader
	filter *DirectionalSource
}

// NewDirectionalTrader는 고정된 방향으로만 진입하는 트레이더를 생성합니다
func NewDirectionalTrader(direction domain.PositionSide, cfg Config, ex exchange.Exchange, source SignalSource, notifier notification.Notifier) *DirectionalTrader {
	filter := NewDirectionalSource(direction, source)
	return &DirectionalTrader{
		LiveTrader: NewLiveTrader(cfg, ex, filter, notifier),
		filter:     filter,
	}
}

// Direction은 트레이더의 고정 방향을 반환합니다
func (d *DirectionalTrader) Direction() domain.PositionSide {
	return d.filter.Direction()
}

// CheckNewEntry는 방향 필터를 거친 진입 신호를 반환합니다
func (d *DirectionalTrader) CheckNewEntry(ctx context.Context, ex exchange.Exchange, ticker domain.Ticker) (*domain.EntrySignal, error) {
	return d.filter.CheckNewEntry(ctx, ex, ticker)
}
