package chathub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/complaint"
	"liveflow/backend/internal/config"
	"liveflow/backend/internal/id"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/moderation"
	"liveflow/backend/internal/ratelimit"
)

var (
	ErrAlreadyActive  = errors.New("session is already searching or connected")
	ErrNotConnected   = errors.New("session is not connected")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrSessionChanged = errors.New("session changed before the operation completed")
	ErrRateLimited    = errors.New("too many messages")
	ErrBanned         = errors.New("session is banned")
)

// System announcements.
const (
	textMatched        = "Matched."
	textMatchedWithFmt = "Matched with %s."
	textNewMatch       = "New match found!"
	textRejected       = "Warning: message blocked by safety filters."
	textSlowDown       = "You are sending messages too fast."
)

const (
	relayTimeout = 5 * time.Second
	inboxSize    = 16
)

// Relay carries chat between the two real participants of a room.
type Relay interface {
	PublishMessage(ctx context.Context, roomID string, msg models.ChatMessage) error
	CloseRoom(ctx context.Context, roomID string) error
}

// BanChecker reports whether a session may start matching.
type BanChecker interface {
	IsSessionBanned(ctx context.Context, sid string) (bool, error)
}

// ComplaintFiler records a report against a partner.
type ComplaintFiler interface {
	File(ctx context.Context, c *models.Complaint) error
}

// SessionDeps are the collaborators of a Session. Provider, Device and
// Scheduler are required; the rest are optional.
type SessionDeps struct {
	Provider   MatchProvider
	Device     capture.Device
	Scheduler  Scheduler
	Moderator  *moderation.Moderator
	Limiter    *ratelimit.Limiter
	Relay      Relay
	Bans       BanChecker
	Complaints ComplaintFiler

	// rooms is set by the hub so relayed traffic reaches room members only.
	rooms roomIndex
}

// Session is the random-mode state machine of one client:
// idle -> searching -> connected, with skip (connected -> searching) and
// exit (any -> idle). Every transition bumps generation; asynchronous
// completions started under an older generation are discarded.
type Session struct {
	ID   string
	deps SessionDeps

	outMu  sync.RWMutex
	out    chan<- models.ServerEvent
	closed bool
	inbox  chan string

	// sendMu keeps chat admission in submission order.
	sendMu sync.Mutex

	mu               sync.Mutex
	prefs            models.UserPreferences
	state            models.MatchState
	remaining        int
	transcript       *Transcript
	handle           *capture.Handle
	partner          *models.Partner
	generation       uint64
	cancelSearch     context.CancelFunc
	cancelModeration context.CancelFunc
	stopTick         func() bool
}

// NewSession creates an idle session writing events to out.
func NewSession(sid string, prefs models.UserPreferences, out chan<- models.ServerEvent, deps SessionDeps) *Session {
	if deps.Scheduler == nil {
		deps.Scheduler = RealScheduler
	}
	s := &Session{
		ID:         sid,
		deps:       deps,
		out:        out,
		inbox:      make(chan string, inboxSize),
		prefs:      prefs,
		state:      models.StateIdle,
		remaining:  config.CountdownSeconds,
		transcript: NewTranscript(),
	}
	go s.runChat()
	return s
}

// Submit queues text for moderation and delivery without blocking the
// caller. Queued messages are handled one at a time in submission order.
func (s *Session) Submit(text string) {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.inbox <- text:
	default:
		s.emitOutLocked(models.ServerEvent{Type: models.EventWarning, Code: "rate_limited", Text: textSlowDown})
	}
}

func (s *Session) runChat() {
	for text := range s.inbox {
		if _, err := s.SendMessage(context.Background(), text); err != nil {
			s.fail(err)
		}
	}
}

// fail reports err to the client when it is user-visible.
func (s *Session) fail(err error) {
	if ev, ok := errorEvent(err); ok {
		s.emit(ev)
	}
}

func (s *Session) State() models.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the countdown in seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Transcript returns the current match's messages in order.
func (s *Session) Transcript() []models.ChatMessage {
	return s.transcript.Messages()
}

// Partner returns the current counterpart, or nil.
func (s *Session) Partner() *models.Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partner == nil {
		return nil
	}
	p := *s.partner
	return &p
}

// SetPreferences replaces the onboarding data. Only allowed while idle.
func (s *Session) SetPreferences(prefs models.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StateIdle {
		return ErrAlreadyActive
	}
	s.prefs = prefs
	return nil
}

// Start acquires the capture device and begins searching.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.prefs.HasIdentity() {
		s.mu.Unlock()
		return models.ErrIdentityRequired
	}
	if s.state != models.StateIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.generation++
	gen := s.generation
	s.state = models.StateSearching
	s.emitStateLocked()
	s.mu.Unlock()

	if s.deps.Bans != nil {
		banned, err := s.deps.Bans.IsSessionBanned(ctx, s.ID)
		if err != nil {
			log.Printf("WARNING: ban check failed for session %s: %v", s.ID, err)
		}
		if banned {
			s.abortStart(gen)
			return ErrBanned
		}
	}

	h, err := s.deps.Device.Acquire(ctx)
	if err != nil {
		s.abortStart(gen)
		if errors.Is(err, capture.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("acquire capture device: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		// Stopped while waiting for the device.
		s.mu.Unlock()
		s.deps.Device.Release(h)
		return ErrSessionChanged
	}
	s.handle = h
	s.searchLocked(false)
	s.mu.Unlock()
	return nil
}

func (s *Session) abortStart(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.generation++
	s.state = models.StateIdle
	s.emitStateLocked()
}

// Skip drops the current partner and searches again.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StateConnected {
		return ErrNotConnected
	}
	s.skipLocked(true)
	return nil
}

// Stop returns to idle from any state and releases the capture device. It
// is safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == models.StateIdle && s.handle == nil {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.cancelPendingLocked()
	s.leaveRoomLocked(true)
	s.transcript.Clear()
	s.remaining = config.CountdownSeconds
	s.state = models.StateIdle
	h := s.handle
	s.handle = nil
	s.emitStateLocked()
	s.mu.Unlock()

	if h != nil {
		s.deps.Device.Release(h)
	}
}

// SendMessage moderates text and appends it to the transcript.
func (s *Session) SendMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != models.StateConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	gen := s.generation
	var roomID string
	if s.partner != nil {
		roomID = s.partner.RoomID
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelModeration = cancel
	s.mu.Unlock()

	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(s.ID) {
		s.emit(models.ServerEvent{Type: models.EventWarning, Code: "rate_limited", Text: textSlowDown})
		return nil, ErrRateLimited
	}

	if s.deps.Moderator != nil {
		if err := s.deps.Moderator.Check(ctx, text); err != nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			// A verdict for a match that is already gone changes nothing.
			if s.generation != gen {
				return nil, ErrSessionChanged
			}
			s.cancelModeration = nil
			s.emit(models.ServerEvent{Type: models.EventWarning, Code: "message_rejected", Text: textRejected})
			return nil, err
		}
	}

	s.mu.Lock()
	if s.generation != gen || s.state != models.StateConnected {
		s.mu.Unlock()
		return nil, ErrSessionChanged
	}
	s.cancelModeration = nil
	msg := models.ChatMessage{
		ID:       id.Message(),
		SenderID: s.ID,
		Sender:   models.SenderYou,
		RoomID:   roomID,
		Text:     text,
		Type:     models.MessageText,
		SentAt:   time.Now(),
	}
	s.transcript.Append(msg)
	s.emit(models.ServerEvent{Type: models.EventMessage, Message: &msg})
	s.mu.Unlock()

	if roomID != "" && s.deps.Relay != nil {
		pctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		if err := s.deps.Relay.PublishMessage(pctx, roomID, msg); err != nil {
			log.Printf("ERROR: relay message for room %s: %v", roomID, err)
		}
	}
	return &msg, nil
}

// Deliver applies a message relayed from the partner's side of the room.
func (s *Session) Deliver(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.SenderID == s.ID || s.state != models.StateConnected || s.partner == nil || s.partner.RoomID == "" || s.partner.RoomID != msg.RoomID {
		return
	}
	if msg.Type == models.MessagePartnerLeft {
		// The partner already closed the room.
		s.skipLocked(false)
		return
	}
	msg.Sender = models.SenderStranger
	s.transcript.Append(msg)
	s.emit(models.ServerEvent{Type: models.EventMessage, Message: &msg})
}

// Report files a complaint against the current partner and skips.
func (s *Session) Report(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state != models.StateConnected || s.partner == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	partner := *s.partner
	var logged []string
	for _, m := range s.transcript.Messages() {
		logged = append(logged, m.Sender+": "+m.Text)
	}
	s.skipLocked(true)
	s.mu.Unlock()

	if s.deps.Complaints == nil {
		return nil
	}
	target := partner.SessionID
	if partner.Simulated {
		target = complaint.SimulatedTarget
	}
	return s.deps.Complaints.File(ctx, &models.Complaint{
		ReporterID:     s.ID,
		TargetID:       target,
		RoomID:         partner.RoomID,
		Reason:         reason,
		LoggedMessages: logged,
	})
}

// Close stops the session and detaches it from its client; later events are
// dropped.
func (s *Session) Close() {
	s.Stop()
	s.outMu.Lock()
	if !s.closed {
		s.closed = true
		s.out = nil
		close(s.inbox)
	}
	s.outMu.Unlock()
	if s.deps.Limiter != nil {
		s.deps.Limiter.Forget(s.ID)
	}
}

func (s *Session) skipLocked(notifyPartner bool) {
	s.cancelPendingLocked()
	s.leaveRoomLocked(notifyPartner)
	s.transcript.Clear()
	s.remaining = config.CountdownSeconds
	s.searchLocked(true)
}

func (s *Session) searchLocked(rematch bool) {
	s.cancelPendingLocked()
	s.generation++
	gen := s.generation
	s.state = models.StateSearching
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelSearch = cancel
	s.emitStateLocked()

	req := models.SearchRequest{SessionID: s.ID, Preferences: s.prefs, Rematch: rematch}
	go s.awaitMatch(ctx, gen, req)
}

func (s *Session) awaitMatch(ctx context.Context, gen uint64, req models.SearchRequest) {
	partner, err := s.deps.Provider.FindMatch(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("ERROR: match search failed for session %s: %v", s.ID, err)
		s.emit(models.ServerEvent{Type: models.EventError, Code: "match_failed", Text: err.Error()})
		s.generation++
		s.cancelPendingLocked()
		s.state = models.StateIdle
		h := s.handle
		s.handle = nil
		s.emitStateLocked()
		if h != nil {
			go s.deps.Device.Release(h)
		}
		return
	}
	s.connectLocked(partner, req.Rematch)
}

func (s *Session) connectLocked(p models.Partner, rematch bool) {
	s.cancelPendingLocked()
	s.generation++
	s.state = models.StateConnected
	s.remaining = config.CountdownSeconds
	s.partner = &p
	if p.RoomID != "" && s.deps.rooms != nil {
		s.deps.rooms.join(p.RoomID, s)
	}
	s.transcript.Clear()

	text := textNewMatch
	if !rematch {
		text = textMatched
		if p.Identity != nil {
			text = fmt.Sprintf(textMatchedWithFmt, *p.Identity)
		}
	}
	msg := models.ChatMessage{
		ID:     id.Message(),
		Sender: models.SenderSystem,
		RoomID: p.RoomID,
		Text:   text,
		Type:   models.MessageSystem,
		SentAt: time.Now(),
	}
	s.transcript.Append(msg)
	s.emitStateLocked()
	s.emit(models.ServerEvent{Type: models.EventMessage, Message: &msg})
	s.armTickLocked(s.generation)
}

func (s *Session) armTickLocked(gen uint64) {
	s.stopTick = s.deps.Scheduler.AfterFunc(config.TickInterval, func() { s.tick(gen) })
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state != models.StateConnected {
		return
	}
	s.stopTick = nil
	s.remaining--
	if s.remaining <= 0 {
		s.skipLocked(true)
		return
	}
	s.emit(models.ServerEvent{Type: models.EventTick, State: s.state, RemainingSeconds: s.remaining})
	s.armTickLocked(gen)
}

// cancelPendingLocked stops the ticker, the pending search and any in-flight
// moderation call.
func (s *Session) cancelPendingLocked() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	if s.cancelSearch != nil {
		s.cancelSearch()
		s.cancelSearch = nil
	}
	if s.cancelModeration != nil {
		s.cancelModeration()
		s.cancelModeration = nil
	}
}

func (s *Session) leaveRoomLocked(notifyPartner bool) {
	p := s.partner
	s.partner = nil
	if p != nil && p.RoomID != "" && s.deps.rooms != nil {
		s.deps.rooms.leave(p.RoomID, s)
	}
	if p == nil || p.Simulated || p.RoomID == "" || s.deps.Relay == nil {
		return
	}
	sid := s.ID
	relay := s.deps.Relay
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		if notifyPartner {
			left := models.ChatMessage{
				ID:       id.Message(),
				SenderID: sid,
				Sender:   models.SenderSystem,
				RoomID:   p.RoomID,
				Type:     models.MessagePartnerLeft,
				SentAt:   time.Now(),
			}
			if err := relay.PublishMessage(ctx, p.RoomID, left); err != nil {
				log.Printf("ERROR: notify partner in room %s: %v", p.RoomID, err)
			}
		}
		if err := relay.CloseRoom(ctx, p.RoomID); err != nil {
			log.Printf("ERROR: close room %s: %v", p.RoomID, err)
		}
	}()
}

func (s *Session) emitStateLocked() {
	s.emit(models.ServerEvent{Type: models.EventState, State: s.state, RemainingSeconds: s.remaining})
}

// emit never blocks; a client that cannot keep up loses events.
func (s *Session) emit(ev models.ServerEvent) {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	s.emitOutLocked(ev)
}

func (s *Session) emitOutLocked(ev models.ServerEvent) {
	if s.out == nil {
		return
	}
	select {
	case s.out <- ev:
	default:
		log.Printf("WARNING: dropping %s event for session %s: client too slow", ev.Type, s.ID)
	}
}

func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > config.MaxMessageLength {
		text = strings.TrimSpace(string([]rune(text)[:config.MaxMessageLength]))
	}
	return text, nil
}
