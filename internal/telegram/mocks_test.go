package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"liveflow/backend/internal/chathub"
	"liveflow/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingBot keeps every outgoing message text and request.
type recordingBot struct {
	mu       sync.Mutex
	texts    []string
	markups  []any
	requests []tgbotapi.Chattable
}

func (b *recordingBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.texts = append(b.texts, m.Text)
		b.markups = append(b.markups, m.ReplyMarkup)
	}
	return tgbotapi.Message{}, nil
}

func (b *recordingBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *recordingBot) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

func (b *recordingBot) last() string {
	texts := b.sent()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type MockHub struct {
	mock.Mock
}

func (m *MockHub) Register(ctx context.Context, c chathub.Client) *chathub.Session {
	args := m.Called(c)
	s, _ := args.Get(0).(*chathub.Session)
	return s
}

func (m *MockHub) Session(sid string) *chathub.Session {
	args := m.Called(sid)
	s, _ := args.Get(0).(*chathub.Session)
	return s
}

func (m *MockHub) HandleCommand(ctx context.Context, sid string, cmd models.ClientCommand) {
	m.Called(sid, cmd)
}

func (m *MockHub) Disconnect(sid string) {
	m.Called(sid)
}

func (h *Handler) draftCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.looking)
}

// Updates are built from JSON the way the Bot API delivers them.
func decodeUpdate(t *testing.T, raw string) tgbotapi.Update {
	t.Helper()
	var u tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func commandUpdate(t *testing.T, chatID int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return decodeUpdate(t, fmt.Sprintf(
		`{"update_id":1,"message":{"message_id":1,"chat":{"id":%d,"type":"private"},"from":{"id":%d,"first_name":"x"},"text":%q,"entities":[{"type":"bot_command","offset":0,"length":%d}]}}`,
		chatID, chatID, text, len(cmd)))
}

func textUpdate(t *testing.T, chatID int64, text, lang string) tgbotapi.Update {
	return decodeUpdate(t, fmt.Sprintf(
		`{"update_id":1,"message":{"message_id":1,"chat":{"id":%d,"type":"private"},"from":{"id":%d,"first_name":"x","language_code":%q},"text":%q}}`,
		chatID, chatID, lang, text))
}

func callbackUpdate(t *testing.T, chatID int64, data string) tgbotapi.Update {
	return decodeUpdate(t, fmt.Sprintf(
		`{"update_id":1,"callback_query":{"id":"cb1","from":{"id":%d,"first_name":"x"},"message":{"message_id":7,"chat":{"id":%d,"type":"private"}},"data":%q}}`,
		chatID, chatID, data))
}
