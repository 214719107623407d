package telegram

import (
	"context"
	"log"
	"strings"
	"sync"

	"liveflow/backend/internal/analysis"
	"liveflow/backend/internal/chathub"
	"liveflow/backend/internal/localization"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data.
const (
	cbAgeConfirm   = "age_confirm"
	cbSelfPrefix   = "self_"
	cbWantPrefix   = "want_"
	cbWantAny      = "want_any"
	cbLookingDone  = "looking_done"
	cbReportPrefix = "report_"
	cbLangPrefix   = "set_lang_"
)

var reportReasons = []string{"spam", "harassment", "underage", "illegal", analysis.ReasonOther}

// BotAPI is the part of tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Hub is the part of chathub.ManagerService the bot uses.
type Hub interface {
	Register(ctx context.Context, c chathub.Client) *chathub.Session
	Session(sid string) *chathub.Session
	HandleCommand(ctx context.Context, sid string, cmd models.ClientCommand)
	Disconnect(sid string)
}

// Handler turns Telegram updates into session gates and hub commands.
type Handler struct {
	Bot       BotAPI
	Hub       Hub
	Sessions  session.Store
	Localizer *localization.Localizer

	mu      sync.Mutex
	langs   map[int64]string
	looking map[int64]map[models.IdentityTag]bool
}

func NewHandler(bot BotAPI, hub Hub, store session.Store, l *localization.Localizer) *Handler {
	return &Handler{
		Bot:       bot,
		Hub:       hub,
		Sessions:  store,
		Localizer: l,
		langs:     make(map[int64]string),
		looking:   make(map[int64]map[models.IdentityTag]bool),
	}
}

// HandleUpdate processes one update. Updates must be handled one at a time.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.From != nil {
		h.rememberLanguage(chatID, msg.From.LanguageCode)
	}
	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" || !h.requireAge(ctx, chatID) {
		return
	}
	h.dispatch(ctx, chatID, models.ClientCommand{Type: models.CommandMessage, Text: text})
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	command := msg.Command()

	if command == "start" {
		if h.ageConfirmed(ctx, chatID) {
			h.reply(chatID, "help")
			return
		}
		out := tgbotapi.NewMessage(chatID, h.text(chatID, "age_gate"))
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.text(chatID, "age_button"), cbAgeConfirm),
		))
		h.send(out)
		return
	}
	if command == "help" {
		h.reply(chatID, "help")
		return
	}
	if command == "language" {
		out := tgbotapi.NewMessage(chatID, h.text(chatID, "choose_language"))
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("English", cbLangPrefix+"en"),
			tgbotapi.NewInlineKeyboardButtonData("Português", cbLangPrefix+"pt"),
		))
		h.send(out)
		return
	}
	if !h.requireAge(ctx, chatID) {
		return
	}

	switch command {
	case "identity":
		out := tgbotapi.NewMessage(chatID, h.text(chatID, "choose_identity"))
		out.ReplyMarkup = h.identityKeyboard(chatID)
		h.send(out)
	case "looking":
		h.startLookingDraft(ctx, chatID)
		out := tgbotapi.NewMessage(chatID, h.text(chatID, "choose_looking"))
		out.ReplyMarkup = h.lookingKeyboard(chatID)
		h.send(out)
	case "search":
		h.dispatch(ctx, chatID, models.ClientCommand{Type: models.CommandStart, MediaGranted: true})
	case "next":
		h.dispatch(ctx, chatID, models.ClientCommand{Type: models.CommandSkip})
	case "stop":
		h.stop(ctx, chatID)
	case "report":
		if !h.connected(chatID) {
			h.reply(chatID, "error_not_connected")
			return
		}
		out := tgbotapi.NewMessage(chatID, h.text(chatID, "report_prompt"))
		out.ReplyMarkup = h.reportKeyboard(chatID)
		h.send(out)
	default:
		h.reply(chatID, "unknown_command")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.Bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to send callback response: %v", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	if data == cbAgeConfirm {
		if err := h.Sessions.SaveAgeConfirmation(ctx, SessionID(chatID)); err != nil {
			log.Printf("ERROR: save age confirmation for chat %d: %v", chatID, err)
			h.reply(chatID, "error_internal")
			return
		}
		h.reply(chatID, "age_confirmed")
		return
	}
	if strings.HasPrefix(data, cbLangPrefix) {
		lang := strings.TrimPrefix(data, cbLangPrefix)
		if !h.Localizer.Has(lang) {
			return
		}
		h.mu.Lock()
		h.langs[chatID] = lang
		h.mu.Unlock()
		h.reply(chatID, "language_changed")
		return
	}
	if !h.requireAge(ctx, chatID) {
		return
	}

	switch {
	case strings.HasPrefix(data, cbSelfPrefix):
		tag, err := models.ParseIdentityTag(strings.TrimPrefix(data, cbSelfPrefix))
		if err != nil {
			return
		}
		prefs := h.loadPreferences(ctx, chatID)
		prefs.SelfIdentity = &tag
		h.savePreferences(ctx, chatID, prefs, "identity_saved")

	case data == cbWantAny:
		h.mu.Lock()
		h.looking[chatID] = make(map[models.IdentityTag]bool)
		h.mu.Unlock()
		h.refreshLooking(chatID, cb.Message.MessageID)

	case strings.HasPrefix(data, cbWantPrefix):
		tag, err := models.ParseIdentityTag(strings.TrimPrefix(data, cbWantPrefix))
		if err != nil {
			return
		}
		h.mu.Lock()
		draft := h.looking[chatID]
		if draft == nil {
			draft = make(map[models.IdentityTag]bool)
			h.looking[chatID] = draft
		}
		draft[tag] = !draft[tag]
		h.mu.Unlock()
		h.refreshLooking(chatID, cb.Message.MessageID)

	case data == cbLookingDone:
		prefs := h.loadPreferences(ctx, chatID)
		if !prefs.HasIdentity() {
			h.reply(chatID, "error_identity_required")
			return
		}
		prefs.DesiredIdentities = h.draftTags(chatID)
		h.dropDraft(chatID)
		h.savePreferences(ctx, chatID, prefs, "looking_saved")

	case strings.HasPrefix(data, cbReportPrefix):
		if !h.connected(chatID) {
			h.reply(chatID, "error_not_connected")
			return
		}
		reason := strings.TrimPrefix(data, cbReportPrefix)
		h.Hub.HandleCommand(ctx, SessionID(chatID), models.ClientCommand{Type: models.CommandReport, Reason: reason})
		h.reply(chatID, "report_sent")
	}
}

// dispatch forwards cmd to the chat's session, registering a client first
// when needed.
func (h *Handler) dispatch(ctx context.Context, chatID int64, cmd models.ClientCommand) {
	sid := SessionID(chatID)
	if h.Hub.Session(sid) == nil {
		c := NewClient(chatID, h.Bot, h.Localizer, func() string { return h.language(chatID) })
		c.Run()
		h.Hub.Register(ctx, c)
	}
	h.Hub.HandleCommand(ctx, sid, cmd)
}

// stop ends the chat's session and releases its client. The next /search
// registers a fresh one.
func (h *Handler) stop(ctx context.Context, chatID int64) {
	h.dropDraft(chatID)
	sid := SessionID(chatID)
	if h.Hub.Session(sid) == nil {
		h.reply(chatID, "search_stopped")
		return
	}
	h.Hub.HandleCommand(ctx, sid, models.ClientCommand{Type: models.CommandStop})
	h.Hub.Disconnect(sid)
}

func (h *Handler) dropDraft(chatID int64) {
	h.mu.Lock()
	delete(h.looking, chatID)
	h.mu.Unlock()
}

func (h *Handler) connected(chatID int64) bool {
	s := h.Hub.Session(SessionID(chatID))
	return s != nil && s.State() == models.StateConnected
}

func (h *Handler) ageConfirmed(ctx context.Context, chatID int64) bool {
	ok, err := h.Sessions.IsAgeConfirmed(ctx, SessionID(chatID))
	if err != nil {
		log.Printf("WARNING: age gate lookup for chat %d: %v", chatID, err)
		return false
	}
	return ok
}

// requireAge replies with the age prompt when the gate is not passed.
func (h *Handler) requireAge(ctx context.Context, chatID int64) bool {
	if h.ageConfirmed(ctx, chatID) {
		return true
	}
	h.reply(chatID, "age_required")
	return false
}

func (h *Handler) loadPreferences(ctx context.Context, chatID int64) models.UserPreferences {
	prefs, err := h.Sessions.LoadPreferences(ctx, SessionID(chatID))
	if err != nil {
		log.Printf("WARNING: load preferences for chat %d: %v", chatID, err)
	}
	if prefs == nil {
		return models.UserPreferences{}
	}
	return *prefs
}

func (h *Handler) savePreferences(ctx context.Context, chatID int64, prefs models.UserPreferences, okKey string) {
	if err := h.Sessions.SavePreferences(ctx, SessionID(chatID), prefs); err != nil {
		log.Printf("ERROR: save preferences for chat %d: %v", chatID, err)
		h.reply(chatID, "error_internal")
		return
	}
	h.reply(chatID, okKey)
}

func (h *Handler) startLookingDraft(ctx context.Context, chatID int64) {
	draft := make(map[models.IdentityTag]bool)
	for _, t := range h.loadPreferences(ctx, chatID).DesiredIdentities {
		draft[t] = true
	}
	h.mu.Lock()
	h.looking[chatID] = draft
	h.mu.Unlock()
}

// draftTags returns the selected tags in display order.
func (h *Handler) draftTags(chatID int64) []models.IdentityTag {
	h.mu.Lock()
	defer h.mu.Unlock()
	var tags []models.IdentityTag
	for _, t := range models.AllIdentityTags {
		if h.looking[chatID][t] {
			tags = append(tags, t)
		}
	}
	return tags
}

func (h *Handler) refreshLooking(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, h.lookingKeyboard(chatID))
	if _, err := h.Bot.Request(edit); err != nil {
		log.Printf("ERROR: update keyboard for chat %d: %v", chatID, err)
	}
}

func (h *Handler) identityKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range models.AllIdentityTags {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.text(chatID, "tag_"+string(t)), cbSelfPrefix+string(t)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) lookingKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	selected := make(map[models.IdentityTag]bool)
	for _, t := range h.draftTags(chatID) {
		selected[t] = true
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range models.AllIdentityTags {
		label := h.text(chatID, "tag_"+string(t))
		if selected[t] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, cbWantPrefix+string(t))))
	}
	anyLabel := h.text(chatID, "looking_any")
	if len(selected) == 0 {
		anyLabel = "✅ " + anyLabel
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(anyLabel, cbWantAny),
		tgbotapi.NewInlineKeyboardButtonData(h.text(chatID, "looking_done"), cbLookingDone),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) reportKeyboard(chatID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range reportReasons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(h.text(chatID, "report_"+r), cbReportPrefix+r),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) rememberLanguage(chatID int64, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.langs[chatID]; ok {
		return
	}
	if strings.HasPrefix(strings.ToLower(code), "pt") {
		h.langs[chatID] = "pt"
	}
}

func (h *Handler) language(chatID int64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lang, ok := h.langs[chatID]; ok {
		return lang
	}
	return localization.DefaultLanguage
}

func (h *Handler) text(chatID int64, key string) string {
	return h.Localizer.GetString(h.language(chatID), key)
}

func (h *Handler) reply(chatID int64, key string) {
	h.send(tgbotapi.NewMessage(chatID, h.text(chatID, key)))
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.Bot.Send(c); err != nil {
		log.Printf("ERROR: telegram send: %v", err)
	}
}
