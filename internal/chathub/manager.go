package chathub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"liveflow/backend/internal/models"
	"liveflow/backend/internal/session"
)

// RoomStore is the part of storage the hub needs to clean up after a restart.
type RoomStore interface {
	GetActiveRoomIDs(ctx context.Context) ([]string, error)
	CloseRoom(ctx context.Context, roomID string) error
}

// roomIndex tracks which local sessions sit in which relayed room.
type roomIndex interface {
	join(roomID string, s *Session)
	leave(roomID string, s *Session)
}

// grantable is implemented by devices whose permission state is reported by
// the client.
type grantable interface {
	SetGranted(bool)
}

// ManagerService owns the connected clients and their sessions, dispatches
// client commands and routes relayed room traffic.
type ManagerService struct {
	mu       sync.RWMutex
	Clients  map[string]Client
	sessions map[string]*Session
	// members maps a room id to the local sessions connected in it.
	members map[string][]*Session

	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.ChatMessage

	Sessions session.Store
	Rooms    RoomStore
	Relays   Subscriber

	// Deps is the template for new sessions; Device comes from the client.
	Deps SessionDeps
}

// NewManagerService creates the hub.
func NewManagerService(store session.Store, deps SessionDeps) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		sessions:     make(map[string]*Session),
		members:      make(map[string][]*Session),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		PubSubCh:     make(chan models.ChatMessage, 64),
		Sessions:     store,
		Deps:         deps,
	}
}

// Run processes registrations and relayed messages until ctx is done.
func (m *ManagerService) Run(ctx context.Context) {
	if m.Relays != nil {
		m.StartPubSubListener(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case c := <-m.RegisterCh:
			m.Register(ctx, c)
		case c := <-m.UnregisterCh:
			m.Unregister(c)
		case msg := <-m.PubSubCh:
			m.route(msg)
		}
	}
}

// Register binds c to a fresh idle session. A previous connection of the same
// browsing session is closed first.
func (m *ManagerService) Register(ctx context.Context, c Client) *Session {
	sid := c.GetUserID()

	var prefs models.UserPreferences
	if m.Sessions != nil {
		p, err := m.Sessions.LoadPreferences(ctx, sid)
		if err != nil {
			log.Printf("WARNING: load preferences for session %s: %v", sid, err)
		} else if p != nil {
			prefs = *p
		}
	}

	deps := m.Deps
	deps.Device = c.Device()
	deps.rooms = m
	sess := NewSession(sid, prefs, c.GetSendChannel(), deps)

	m.mu.Lock()
	oldClient, oldSession := m.Clients[sid], m.sessions[sid]
	m.Clients[sid] = c
	m.sessions[sid] = sess
	m.mu.Unlock()

	if oldSession != nil {
		oldSession.Close()
	}
	if oldClient != nil {
		log.Printf("INFO: session %s reconnected, closing previous connection", sid)
		oldClient.Close()
	}
	log.Printf("INFO: client registered: %s", sid)
	return sess
}

// Unregister stops the client's session and closes the client. Calls for a
// client that was already replaced are ignored.
func (m *ManagerService) Unregister(c Client) {
	sid := c.GetUserID()
	m.mu.Lock()
	if m.Clients[sid] != c {
		m.mu.Unlock()
		return
	}
	sess := m.sessions[sid]
	delete(m.Clients, sid)
	delete(m.sessions, sid)
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	c.Close()
	log.Printf("INFO: client unregistered: %s", sid)
}

// Session returns the live session of sid, or nil.
func (m *ManagerService) Session(sid string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sid]
}

// HandleCommand applies one client command. Errors are reported to the
// client as events rather than returned.
func (m *ManagerService) HandleCommand(ctx context.Context, sid string, cmd models.ClientCommand) {
	sess := m.Session(sid)
	if sess == nil {
		log.Printf("WARNING: command %q for unknown session %s", cmd.Type, sid)
		return
	}

	var err error
	switch cmd.Type {
	case models.CommandStart:
		if g, ok := sess.deps.Device.(grantable); ok {
			g.SetGranted(cmd.MediaGranted)
		}
		m.reloadPreferences(ctx, sess)
		err = sess.Start(ctx)
	case models.CommandSkip:
		err = sess.Skip()
	case models.CommandStop:
		sess.Stop()
	case models.CommandMessage:
		sess.Submit(cmd.Text)
	case models.CommandReport:
		err = sess.Report(ctx, cmd.Reason)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}
	if err != nil {
		sess.fail(err)
	}
}

// reloadPreferences picks up changes saved over HTTP since the client
// connected.
func (m *ManagerService) reloadPreferences(ctx context.Context, sess *Session) {
	if m.Sessions == nil {
		return
	}
	prefs, err := m.Sessions.LoadPreferences(ctx, sess.ID)
	if err != nil {
		log.Printf("WARNING: reload preferences for session %s: %v", sess.ID, err)
		return
	}
	if prefs != nil {
		_ = sess.SetPreferences(*prefs)
	}
}

// Disconnect unregisters the current client of sid, if any.
func (m *ManagerService) Disconnect(sid string) {
	m.mu.RLock()
	c := m.Clients[sid]
	m.mu.RUnlock()
	if c != nil {
		m.Unregister(c)
	}
}

func (m *ManagerService) join(roomID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[roomID] = append(m.members[roomID], s)
}

func (m *ManagerService) leave(roomID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.members[roomID]
	for i, member := range list {
		if member == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.members, roomID)
		return
	}
	m.members[roomID] = list
}

// route hands a relayed message to the local members of its room.
func (m *ManagerService) route(msg models.ChatMessage) {
	m.mu.RLock()
	targets := append([]*Session(nil), m.members[msg.RoomID]...)
	m.mu.RUnlock()

	for _, s := range targets {
		s.Deliver(msg)
	}
}

// CloseStaleRooms marks rooms left active by a previous process as ended.
// Sessions live in memory, so nobody can be in them anymore.
func (m *ManagerService) CloseStaleRooms(ctx context.Context) {
	if m.Rooms == nil {
		return
	}
	log.Println("Starting stale room cleanup...")
	ids, err := m.Rooms.GetActiveRoomIDs(ctx)
	if err != nil {
		log.Printf("ERROR: Failed to retrieve active rooms from storage: %v", err)
		return
	}
	for _, roomID := range ids {
		if err := m.Rooms.CloseRoom(ctx, roomID); err != nil {
			log.Printf("WARNING: could not close stale room %s: %v", roomID, err)
		}
	}
	log.Printf("Cleanup complete. Closed %d stale rooms.", len(ids))
}

func (m *ManagerService) shutdown() {
	m.mu.Lock()
	clients := m.Clients
	sessions := m.sessions
	m.Clients = make(map[string]Client)
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for sid, s := range sessions {
		s.Close()
		if c := clients[sid]; c != nil {
			c.Close()
		}
	}
}
