// Package telegram handles the integration with the Telegram Bot API.
// It is responsible for receiving updates from Telegram, processing them,
// and communicating with the central chat hub. Telegram chats are
// text-only: they join random mode without a camera.
package telegram

import (
	"context"
	"log"

	"liveflow/backend/internal/localization"
	"liveflow/backend/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotService is responsible for receiving Telegram updates and routing them to the hub.
type BotService struct {
	BotAPI  *tgbotapi.BotAPI
	Handler *Handler
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, hub Hub, store session.Store, l *localization.Localizer) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	return &BotService{
		BotAPI:  bot,
		Handler: NewHandler(bot, hub, store, l),
	}, nil
}

// Run polls updates until ctx is done.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.Handler.HandleUpdate(ctx, update)
		}
	}
}
