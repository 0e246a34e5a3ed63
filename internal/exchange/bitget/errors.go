package bitget

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError는 Bitget API가 반환한 에러 응답을 표현합니다
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

// Error는 error 인터페이스를 구현합니다
func (e *APIError) Error() string {
	return fmt.Sprintf("bitget API 에러(HTTP %d, 코드: %s): %s", e.HTTPStatus, e.Code, e.Message)
}

// TransientError는 재시도 후에도 해소되지 않은 일시적 전송 오류를 표현합니다.
// 타임아웃, 5xx, 레이트 리밋이 여기에 해당하며, 호출자는 다음 주기에 재시도할 수 있습니다.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

// Error는 error 인터페이스를 구현합니다
func (e *TransientError) Error() string {
	return fmt.Sprintf("일시적 거래소 오류 [%s, 시도 %d회]: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap은 내부 에러를 반환합니다 (errors.Is/As 지원을 위함)
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient는 에러가 일시적 전송 오류인지 확인합니다
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// isRetryable는 재시도로 해소될 가능성이 있는 오류인지 판단합니다.
// 인증 거부나 주문 거절 같은 의미적 오류는 재시도하지 않습니다.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus >= http.StatusInternalServerError ||
			apiErr.HTTPStatus == http.StatusTooManyRequests
	}

	// 타임아웃, 연결 실패 등 네트워크 계층 오류
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
