package services

import (
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient sends operational alerts to a fixed chat. Optional: when the
// bot token is empty the constructor returns nil and callers skip sending.
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramClient authorizes the bot. Returns (nil, nil) when no token is
// configured so alerting degrades to log-only.
func NewTelegramClient(token, chatID string) (*TelegramClient, error) {
	if token == "" || chatID == "" {
		return nil, nil
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	bot.Debug = false

	log.Printf("Telegram bot authorized: %s", bot.Self.UserName)

	return &TelegramClient{bot: bot, chatID: chatIDInt}, nil
}

// SendMessage sends an HTML-formatted message to the configured chat.
func (tc *TelegramClient) SendMessage(message string) error {
	if tc == nil || tc.bot == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(tc.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := tc.bot.Send(msg); err != nil {
		return fmt.Errorf("could not send telegram message: %w", err)
	}
	return nil
}

// IsHealthy checks whether the bot can reach the API.
func (tc *TelegramClient) IsHealthy() bool {
	if tc == nil || tc.bot == nil {
		return false
	}
	_, err := tc.bot.GetMe()
	return err == nil
}
