package telegram

import (
	"log"
	"strconv"
	"sync"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/localization"
	"liveflow/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Seconds before the end of a chat at which the user is warned.
var countdownWarnings = map[int]bool{30: true, 10: true}

// Client реалізує інтерфейс chathub.Client для Telegram. There is no read
// pump: updates are polled centrally by the bot and routed by the Handler.
type Client struct {
	ChatID    int64
	SessionID string
	Send      chan models.ServerEvent
	Bot       BotAPI
	Localizer *localization.Localizer
	Lang      func() string

	device capture.TextOnlyDevice
	state  models.MatchState

	mu     sync.Mutex
	closed bool
}

// NewClient creates a text-only client for chatID.
func NewClient(chatID int64, bot BotAPI, l *localization.Localizer, lang func() string) *Client {
	return &Client{
		ChatID:    chatID,
		SessionID: SessionID(chatID),
		Send:      make(chan models.ServerEvent, 64),
		Bot:       bot,
		Localizer: l,
		Lang:      lang,
		state:     models.StateIdle,
	}
}

// SessionID is the browsing-session id used for a Telegram chat.
func SessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

func (c *Client) GetUserID() string                         { return c.SessionID }
func (c *Client) GetSendChannel() chan<- models.ServerEvent { return c.Send }
func (c *Client) Device() capture.Device                    { return &c.device }

// Run запускає 'write pump'. 'Read pump' обробляється централізовано.
func (c *Client) Run() {
	go c.writePump()
}

// Close закриває Send канал
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) writePump() {
	for ev := range c.Send {
		text, ok := c.render(ev)
		if !ok {
			continue
		}
		if _, err := c.Bot.Send(tgbotapi.NewMessage(c.ChatID, text)); err != nil {
			log.Printf("ERROR: telegram send to %d: %v", c.ChatID, err)
		}
	}
	log.Printf("Зупинка writePump для Telegram клієнта %s", c.SessionID)
}

// render turns a session event into chat text. Events with nothing to say
// report ok=false.
func (c *Client) render(ev models.ServerEvent) (text string, ok bool) {
	lang := c.Lang()
	switch ev.Type {
	case models.EventState:
		prev := c.state
		c.state = ev.State
		switch {
		case ev.State == models.StateSearching:
			return c.Localizer.GetString(lang, "searching"), true
		case ev.State == models.StateIdle && prev == models.StateConnected:
			return c.Localizer.GetString(lang, "chat_ended"), true
		case ev.State == models.StateIdle && prev == models.StateSearching:
			return c.Localizer.GetString(lang, "search_stopped"), true
		}
	case models.EventMessage:
		// Own messages are already visible in the Telegram chat.
		if ev.Message != nil && ev.Message.Sender != models.SenderYou {
			return ev.Message.Text, true
		}
	case models.EventTick:
		if countdownWarnings[ev.RemainingSeconds] {
			return c.Localizer.Format(lang, "countdown_warning", ev.RemainingSeconds), true
		}
	case models.EventWarning:
		return c.Localizer.GetString(lang, "warning_"+ev.Code), true
	case models.EventError:
		return c.Localizer.GetString(lang, "error_"+ev.Code), true
	}
	return "", false
}
