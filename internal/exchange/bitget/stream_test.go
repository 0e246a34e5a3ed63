package bitget

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/harmonia/internal/domain"
)

func TestTickerStream_Dispatch(t *testing.T) {
	var received []domain.Ticker
	stream := NewTickerStream("BTCUSDT", func(ticker domain.Ticker) {
		received = append(received, ticker)
	})

	t.Run("시세 메시지는 핸들러로 전달", func(t *testing.T) {
		stream.dispatch([]byte(`{
			"arg":{"channel":"ticker","instId":"BTCUSDT"},
			"data":[{"instId":"BTCUSDT","lastPr":"50123.5","high24h":"51000",
			         "low24h":"49000","baseVolume":"1234.5","ts":"1700000000000"}]
		}`))

		require.Len(t, received, 1)
		assert.Equal(t, "BTCUSDT", received[0].Symbol)
		assert.True(t, received[0].Last.Equal(decimal.NewFromFloat(50123.5)))
		assert.Equal(t, int64(1700000000000), received[0].Timestamp.UnixMilli())
	})

	t.Run("구독 확인 이벤트는 무시", func(t *testing.T) {
		stream.dispatch([]byte(`{"event":"subscribe","arg":{"channel":"ticker","instId":"BTCUSDT"}}`))
		assert.Len(t, received, 1)
	})

	t.Run("다른 채널 메시지는 무시", func(t *testing.T) {
		stream.dispatch([]byte(`{"arg":{"channel":"candle1m","instId":"BTCUSDT"},"data":[]}`))
		assert.Len(t, received, 1)
	})

	t.Run("가격이 깨진 행은 건너뜀", func(t *testing.T) {
		stream.dispatch([]byte(`{
			"arg":{"channel":"ticker","instId":"BTCUSDT"},
			"data":[{"instId":"BTCUSDT","lastPr":"not-a-number","ts":"1700000000000"}]
		}`))
		assert.Len(t, received, 1)
	})
}
