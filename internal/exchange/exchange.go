// internal/exchange/exchange.go
package exchange

import (
	"context"

	"github.com/assist-by/harmonia/internal/domain"
)

// Exchange는 거래소와의 상호작용을 위한 인터페이스입니다.
type Exchange interface {
	// 수명 주기
	Initialize(ctx context.Context) error
	Close() error

	// 설정 기능
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, mode domain.MarginMode) error

	// 시장 데이터 조회
	GetMarketTicker(ctx context.Context, symbol string) (*domain.Ticker, error)
	GetContractSpec(ctx context.Context, symbol string) (*domain.ContractSpec, error)

	// 거래 기능
	PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderAck, error)
	ClosePosition(ctx context.Context, symbol string, side domain.PositionSide) (*domain.OrderAck, error)

	// 계정 데이터 조회
	GetPositions(ctx context.Context, symbol string) ([]domain.Position, error)
	GetBalance(ctx context.Context) (map[string]domain.Balance, error)
}
