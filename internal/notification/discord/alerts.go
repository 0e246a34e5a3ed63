package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/notification"
)

// SendAlert는 운영자 알림을 전송합니다
func (c *Client) SendAlert(message string) error {
	color := domain.ColorInfo
	if strings.Contains(message, "⚠️") || strings.Contains(message, "경고") {
		color = domain.ColorWarning
	}

	embed := NewEmbed().
		SetTitle("📢 포지션 보고").
		SetDescription(message).
		SetColor(color).
		SetFooter("Harmonia Trading Bot 🤖").
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.alertWebhook, msg)
}

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(domain.ColorError).
		SetFooter("Harmonia Trading Bot 🤖").
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.errorWebhook, msg)
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(message string) error {
	embed := NewEmbed().
		SetDescription(message).
		SetColor(domain.ColorInfo).
		SetFooter("Harmonia Trading Bot 🤖").
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.infoWebhook, msg)
}

// SendTradeInfo는 거래 실행 정보를 전송합니다
func (c *Client) SendTradeInfo(info notification.TradeInfo) error {
	embed := NewEmbed().
		SetTitle(fmt.Sprintf("거래 실행: %s", info.Symbol)).
		SetColor(notification.GetColorForSide(info.Side)).
		AddField("방향", strings.ToUpper(string(info.Side)), true).
		AddField("서브 계정", info.SubAccount, true).
		AddField("레버리지", fmt.Sprintf("%dx", info.Leverage), true).
		AddField("수량", info.Quantity.String(), true).
		AddField("진입가", "$"+info.EntryPrice.String(), true).
		AddField("포지션 가치", "$"+info.PositionValue.String(), true).
		AddField("손절가", "$"+info.StopLoss.String(), true).
		AddField("목표가", "$"+info.TakeProfit.String(), true).
		SetFooter("Harmonia Trading Bot 🤖").
		SetTimestamp(time.Now())

	msg := WebhookMessage{
		Embeds: []Embed{*embed},
	}

	return c.sendToWebhook(c.tradeWebhook, msg)
}
