// internal/exchange/bitget/stream.go
package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/assist-by/harmonia/internal/domain"
)

const (
	publicStreamURL = "wss://ws.bitget.com/v2/ws/public"

	pingInterval = 15 * time.Second
	readDeadline = 90 * time.Second
)

// TickerHandler는 수신한 시세 업데이트를 처리합니다
type TickerHandler func(ticker domain.Ticker)

// TickerStream은 공개 웹소켓 채널로 실시간 시세를 수신합니다.
// 연결이 끊어지면 자동으로 재접속하고 구독을 복구합니다.
type TickerStream struct {
	url     string
	symbol  string
	handler TickerHandler
}

// NewTickerStream은 새로운 시세 스트림을 생성합니다
func NewTickerStream(symbol string, handler TickerHandler) *TickerStream {
	return &TickerStream{
		url:     publicStreamURL,
		symbol:  symbol,
		handler: handler,
	}
}

// Run은 컨텍스트가 취소될 때까지 스트림을 유지합니다
func (s *TickerStream) Run(ctx context.Context) error {
	for {
		if err := s.connectAndServe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("시세 스트림 연결 끊김, 재접속합니다 [심볼: %s]: %v", s.symbol, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (s *TickerStream) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("웹소켓 연결 실패: %w", err)
	}
	defer conn.Close()

	if err := s.subscribe(conn); err != nil {
		return err
	}

	// 서버는 일정 간격의 "ping" 텍스트 프레임을 요구합니다
	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return err
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("메시지 수신 실패: %w", err)
		}

		if string(raw) == "pong" {
			continue
		}

		s.dispatch(raw)
	}
}

func (s *TickerStream) subscribe(conn *websocket.Conn) error {
	req := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{
				"instType": defaultProductType,
				"channel":  "ticker",
				"instId":   s.symbol,
			},
		},
	}

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("구독 요청 실패: %w", err)
	}

	return nil
}

func (s *TickerStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (s *TickerStream) dispatch(raw []byte) {
	var msg struct {
		Event string `json:"event"`
		Arg   struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			InstID     string `json:"instId"`
			LastPr     string `json:"lastPr"`
			High24h    string `json:"high24h"`
			Low24h     string `json:"low24h"`
			BaseVolume string `json:"baseVolume"`
			Ts         string `json:"ts"`
		} `json:"data"`
	}

	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("스트림 메시지 파싱 실패: %v", err)
		return
	}

	// 구독 확인 등 이벤트 메시지는 데이터가 없습니다
	if msg.Event != "" || msg.Arg.Channel != "ticker" {
		return
	}

	for _, row := range msg.Data {
		last, err := decimal.NewFromString(row.LastPr)
		if err != nil {
			continue
		}
		high, _ := decimal.NewFromString(row.High24h)
		low, _ := decimal.NewFromString(row.Low24h)
		volume, _ := decimal.NewFromString(row.BaseVolume)
		tsMillis, _ := strconv.ParseInt(row.Ts, 10, 64)

		s.handler(domain.Ticker{
			Symbol:    row.InstID,
			Last:      last,
			High:      high,
			Low:       low,
			Volume:    volume,
			Timestamp: time.Unix(0, tsMillis*int64(time.Millisecond)),
		})
	}
}
