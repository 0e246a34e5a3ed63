package domain

import "github.com/shopspring/decimal"

// EntrySignal은 시그널 소스가 생성한 진입 후보를 표현합니다.
// Side가 비어 있는 시그널은 방향성이 없는 시그널(예: 리스크 관리 판단)이며,
// 방향 필터를 그대로 통과해야 합니다.
type EntrySignal struct {
	Side  PositionSide           // 진입 방향 (비어 있을 수 있음)
	Price decimal.Decimal        // 시그널 기준 가격
	Meta  map[string]interface{} // 시그널 소스가 첨부한 부가 정보
}

// HasSide는 시그널에 방향 정보가 있는지 확인합니다
func (s *EntrySignal) HasSide() bool {
	return s != nil && s.Side != ""
}
