package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest는 주문 생성 요청 정보를 담습니다
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Amount     decimal.Decimal // 계약 수량 (코인)
	Price      decimal.Decimal // 지정가 주문 시 가격 (시장가는 0)
	ReduceOnly bool            // 감소 전용(청산) 주문 여부
}

// OrderAck는 주문 접수 결과를 담습니다
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	CreatedAt     time.Time
}

// ContractSpec은 심볼의 계약 정보를 담습니다.
// 주문 가격/수량을 거래소가 허용하는 정밀도로 맞출 때 사용합니다.
type ContractSpec struct {
	Symbol         string
	PricePlaces    int32           // 가격 소수 자릿수
	QuantityPlaces int32           // 수량 소수 자릿수
	MinTradeNum    decimal.Decimal // 최소 주문 수량
	MinTradeUSDT   decimal.Decimal // 최소 주문 금액 (USDT)
}

// QuantizePrice는 가격을 계약 정밀도에 맞게 내림 처리합니다
func (c ContractSpec) QuantizePrice(price decimal.Decimal) decimal.Decimal {
	return price.RoundFloor(c.PricePlaces)
}

// QuantizeQuantity는 수량을 계약 정밀도에 맞게 내림 처리합니다
func (c ContractSpec) QuantizeQuantity(qty decimal.Decimal) decimal.Decimal {
	return qty.RoundFloor(c.QuantityPlaces)
}
