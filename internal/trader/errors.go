package trader

import "fmt"

// Error 타입들은 트레이더 동작 중 발생할 수 있는 다양한 에러를 정의합니다
var (
	ErrInsufficientBalance = fmt.Errorf("잔고가 부족합니다")
	ErrNotInitialized      = fmt.Errorf("트레이더가 초기화되지 않았습니다")
	ErrAlreadyRunning      = fmt.Errorf("트레이더가 이미 실행 중입니다")
)

// TraderError는 트레이더 에러를 확장한 구조체입니다
type TraderError struct {
	Symbol string
	Op     string
	Err    error
}

// Error는 error 인터페이스를 구현합니다
func (e *TraderError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("트레이더 에러 [%s, 작업: %s]: %v", e.Symbol, e.Op, e.Err)
	}
	return fmt.Sprintf("트레이더 에러 [작업: %s]: %v", e.Op, e.Err)
}

// Unwrap은 내부 에러를 반환합니다 (errors.Is/As 지원을 위함)
func (e *TraderError) Unwrap() error {
	return e.Err
}

// NewTraderError는 새로운 TraderError를 생성합니다
func NewTraderError(symbol, op string, err error) *TraderError {
	return &TraderError{
		Symbol: symbol,
		Op:     op,
		Err:    err,
	}
}
