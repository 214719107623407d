package chathub

import (
	"context"
	"log"
	"time"

	"liveflow/backend/internal/models"

	"github.com/google/uuid"
)

// RoomSaver persists a new pairing.
type RoomSaver interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
}

type waiter struct {
	req    models.SearchRequest
	result chan models.Partner
}

// MatcherService відповідає за алгоритм пошуку співрозмовників.
// It pairs real searching sessions whose preferences accept each other and
// implements MatchProvider.
type MatcherService struct {
	Storage RoomSaver
	Relay   Relay

	// queue holds waiting sessions, oldest first. Only Run touches it.
	queue []*waiter

	requests chan *waiter
	cancels  chan *waiter
	queued   chan chan int
}

// NewMatcherService створює новий Matcher.
func NewMatcherService(s RoomSaver, relay Relay) *MatcherService {
	return &MatcherService{
		Storage:  s,
		Relay:    relay,
		requests: make(chan *waiter),
		cancels:  make(chan *waiter),
		queued:   make(chan chan int),
	}
}

// Run запускає основну Goroutine Matcher'а.
func (m *MatcherService) Run(ctx context.Context) {
	log.Println("Matcher Service started.")
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-m.requests:
			m.queue = append(m.queue, w)
			log.Printf("New match request added to queue: %s", w.req.SessionID)
			m.findMatch(ctx, w)
		case w := <-m.cancels:
			m.remove(w)
		case reply := <-m.queued:
			reply <- len(m.queue)
		}
	}
}

// QueueLen reports how many sessions are waiting.
func (m *MatcherService) QueueLen(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case m.queued <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	}
}

// FindMatch enqueues req and waits for a compatible partner.
func (m *MatcherService) FindMatch(ctx context.Context, req models.SearchRequest) (models.Partner, error) {
	w := &waiter{req: req, result: make(chan models.Partner, 1)}
	select {
	case m.requests <- w:
	case <-ctx.Done():
		return models.Partner{}, ctx.Err()
	}

	select {
	case p := <-w.result:
		return p, nil
	case <-ctx.Done():
	}

	select {
	case m.cancels <- w:
	case p := <-w.result:
		m.abandon(p)
		return models.Partner{}, ctx.Err()
	}
	// Matched in the window between cancellation and dequeue.
	select {
	case p := <-w.result:
		m.abandon(p)
	default:
	}
	return models.Partner{}, ctx.Err()
}

// abandon tells the partner of a match nobody will use that it is over.
func (m *MatcherService) abandon(p models.Partner) {
	if m.Relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	left := models.ChatMessage{RoomID: p.RoomID, Type: models.MessagePartnerLeft, Sender: models.SenderSystem, SentAt: time.Now()}
	if err := m.Relay.PublishMessage(ctx, p.RoomID, left); err != nil {
		log.Printf("ERROR: abandon room %s: %v", p.RoomID, err)
	}
	if err := m.Relay.CloseRoom(ctx, p.RoomID); err != nil {
		log.Printf("ERROR: close abandoned room %s: %v", p.RoomID, err)
	}
}

// findMatch намагається знайти співрозмовника для даного запиту (req)
func (m *MatcherService) findMatch(ctx context.Context, w *waiter) {
	for _, other := range m.queue {
		// Не шукати пару із самим собою
		if other.req.SessionID == w.req.SessionID {
			continue
		}
		if !models.Compatible(&w.req.Preferences, &other.req.Preferences) {
			continue
		}

		room := &models.ChatRoom{
			RoomID:    uuid.New().String(),
			User1ID:   other.req.SessionID,
			User2ID:   w.req.SessionID,
			User1Tag:  *other.req.Preferences.SelfIdentity,
			User2Tag:  *w.req.Preferences.SelfIdentity,
			IsActive:  true,
			StartedAt: time.Now(),
		}
		if m.Storage != nil {
			if err := m.Storage.SaveRoom(ctx, room); err != nil {
				log.Printf("Error saving new room: %v", err)
				return
			}
		}

		other.result <- models.Partner{SessionID: room.User2ID, RoomID: room.RoomID, Identity: tagPtr(room.User2Tag)}
		w.result <- models.Partner{SessionID: room.User1ID, RoomID: room.RoomID, Identity: tagPtr(room.User1Tag)}

		m.remove(other)
		m.remove(w)
		log.Printf("Match found: %s and %s in room %s", room.User1ID, room.User2ID, room.RoomID)
		return
	}
}

func (m *MatcherService) remove(target *waiter) {
	for i, w := range m.queue {
		if w == target {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func tagPtr(t models.IdentityTag) *models.IdentityTag { return &t }
