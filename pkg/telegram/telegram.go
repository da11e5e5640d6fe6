// telegram 通知模块，发送消息到 telegram bot
package telegram

import (
	"context"
	"errors"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrNotConfigured = errors.New("telegram: token or chat id is empty")

type Option func(*Telegram)

// WithEndpoint 替换 bot api 地址，格式同 tgbotapi.APIEndpoint
func WithEndpoint(endpoint string) Option {
	return func(t *Telegram) { t.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *Telegram) { t.client = c }
}

type Telegram struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func New(token string, chatID int64, opts ...Option) *Telegram {
	t := &Telegram{
		token:    token,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Enabled 为 false 时 SendText 直接返回 ErrNotConfigured
func (t *Telegram) Enabled() bool {
	return t != nil && t.token != "" && t.chatID != 0
}

// botAPI 第一次发送时才连接 telegram（NewBotAPI 会调用 getMe），失败不缓存
func (t *Telegram) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

// SendText 发送一条纯文本消息。ctx 只用于提前放弃，tgbotapi 本身不支持 ctx。
func (t *Telegram) SendText(ctx context.Context, txtMsg string) error {
	if !t.Enabled() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.botAPI()
	if err != nil {
		return err
	}
	if _, err := bot.Send(tgbotapi.NewMessage(t.chatID, txtMsg)); err != nil {
		return err
	}
	return nil
}
