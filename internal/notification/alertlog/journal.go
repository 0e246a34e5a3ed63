// Package alertlog는 알림을 JSON 라인 파일로 남기는 저널을 제공합니다.
// Discord 같은 외부 채널이 없거나 실패해도 운영 기록은 보존됩니다.
package alertlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/assist-by/harmonia/internal/notification"
)

// entry는 저널에 기록되는 한 줄을 정의합니다
type entry struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Journal은 알림을 파일에 기록하면서 내부 Notifier로 전달합니다.
// 내부 Notifier가 nil이면 기록만 합니다.
type Journal struct {
	mu    sync.Mutex
	w     io.Writer
	inner notification.Notifier
}

// Open은 지정한 경로에 저널 파일을 열고 Journal을 생성합니다
func Open(path string, inner notification.Notifier) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("알림 저널 파일 열기 실패: %w", err)
	}
	return &Journal{w: f, inner: inner}, nil
}

// NewJournal은 임의의 Writer를 사용하는 Journal을 생성합니다
func NewJournal(w io.Writer, inner notification.Notifier) *Journal {
	return &Journal{w: w, inner: inner}
}

func (j *Journal) record(kind, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      kind,
		Message:   message,
	})
	if err != nil {
		return err
	}

	_, err = j.w.Write(append(line, '\n'))
	return err
}

// SendAlert는 알림을 기록하고 내부 채널로 전달합니다
func (j *Journal) SendAlert(message string) error {
	if err := j.record("alert", message); err != nil {
		return err
	}
	if j.inner == nil {
		return nil
	}
	return j.inner.SendAlert(message)
}

// SendError는 에러를 기록하고 내부 채널로 전달합니다
func (j *Journal) SendError(sendErr error) error {
	if err := j.record("error", sendErr.Error()); err != nil {
		return err
	}
	if j.inner == nil {
		return nil
	}
	return j.inner.SendError(sendErr)
}

// SendInfo는 정보를 기록하고 내부 채널로 전달합니다
func (j *Journal) SendInfo(message string) error {
	if err := j.record("info", message); err != nil {
		return err
	}
	if j.inner == nil {
		return nil
	}
	return j.inner.SendInfo(message)
}

// SendTradeInfo는 거래 정보를 기록하고 내부 채널로 전달합니다
func (j *Journal) SendTradeInfo(info notification.TradeInfo) error {
	summary := fmt.Sprintf("%s %s x%s @ %s (서브 계정: %s)",
		info.Symbol, info.Side, info.Quantity, info.EntryPrice, info.SubAccount)
	if err := j.record("trade", summary); err != nil {
		return err
	}
	if j.inner == nil {
		return nil
	}
	return j.inner.SendTradeInfo(info)
}
