package alertlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/harmonia/internal/notification"
)

type recordingNotifier struct {
	alerts []string
	errors []error
}

func (r *recordingNotifier) SendAlert(message string) error {
	r.alerts = append(r.alerts, message)
	return nil
}
func (r *recordingNotifier) SendError(err error) error {
	r.errors = append(r.errors, err)
	return nil
}
func (r *recordingNotifier) SendInfo(message string) error                  { return nil }
func (r *recordingNotifier) SendTradeInfo(info notification.TradeInfo) error { return nil }

func TestJournal_RecordsAndForwards(t *testing.T) {
	var buf bytes.Buffer
	inner := &recordingNotifier{}
	journal := NewJournal(&buf, inner)

	require.NoError(t, journal.SendAlert("가용 잔고 한도 위반"))
	require.NoError(t, journal.SendError(fmt.Errorf("주문 거절")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "alert", first.Kind)
	assert.Equal(t, "가용 잔고 한도 위반", first.Message)
	assert.NotEmpty(t, first.Timestamp)

	var second entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second.Kind)

	// 내부 채널로도 전달되어야 합니다
	require.Len(t, inner.alerts, 1)
	require.Len(t, inner.errors, 1)
}

func TestJournal_NilInnerIsRecordOnly(t *testing.T) {
	var buf bytes.Buffer
	journal := NewJournal(&buf, nil)

	require.NoError(t, journal.SendAlert("기록만 하는 저널"))
	require.NoError(t, journal.SendInfo("정보"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}
