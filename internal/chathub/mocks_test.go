package chathub_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage covers the storage-facing interfaces of the hub, the matcher
// and the session: RoomSaver, RoomStore, Relay, BanChecker and Subscriber.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID string) error {
	args := m.Called(roomID)
	return args.Error(0)
}

func (m *MockStorage) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) PublishMessage(ctx context.Context, roomID string, msg models.ChatMessage) error {
	args := m.Called(roomID, msg)
	return args.Error(0)
}

func (m *MockStorage) IsSessionBanned(ctx context.Context, sid string) (bool, error) {
	args := m.Called(sid)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SubscribeToAllRooms(ctx context.Context) *redis.PubSub {
	args := m.Called()
	return args.Get(0).(*redis.PubSub)
}

// MockComplaints records filed complaints.
type MockComplaints struct {
	mock.Mock
}

func (m *MockComplaints) File(ctx context.Context, c *models.Complaint) error {
	args := m.Called(c)
	return args.Error(0)
}

// mockClient is an in-memory chathub.Client.
type mockClient struct {
	userID string
	events chan models.ServerEvent
	device capture.Device

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string, device capture.Device) *mockClient {
	return &mockClient{userID: userID, events: make(chan models.ServerEvent, 1024), device: device}
}

func (c *mockClient) GetUserID() string                         { return c.userID }
func (c *mockClient) GetSendChannel() chan<- models.ServerEvent { return c.events }
func (c *mockClient) Device() capture.Device                    { return c.device }
func (c *mockClient) Run()                                      {}

func (c *mockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *mockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// manualScheduler fires callbacks only from Advance, inline and in deadline
// order, so timers armed by a callback are picked up in the same Advance.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at   time.Duration
	seq  int
	f    func()
	done bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.done {
			return false
		}
		t.done = true
		return true
	}
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		var due []*manualTimer
		for _, t := range s.timers {
			if !t.done && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.done = true
		s.now = next.at
		s.mu.Unlock()
		next.f()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Pending counts timers that have neither fired nor been stopped.
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// pendingMatch is one FindMatch call waiting for the test to answer it.
type pendingMatch struct {
	req    models.SearchRequest
	ctx    context.Context
	result chan models.Partner
	err    chan error
}

// stubProvider hands every FindMatch call to the test.
type stubProvider struct {
	calls chan *pendingMatch
}

func newStubProvider() *stubProvider {
	return &stubProvider{calls: make(chan *pendingMatch, 16)}
}

func (p *stubProvider) FindMatch(ctx context.Context, req models.SearchRequest) (models.Partner, error) {
	pm := &pendingMatch{req: req, ctx: ctx, result: make(chan models.Partner, 1), err: make(chan error, 1)}
	p.calls <- pm
	select {
	case partner := <-pm.result:
		return partner, nil
	case err := <-pm.err:
		return models.Partner{}, err
	case <-ctx.Done():
		return models.Partner{}, ctx.Err()
	}
}

// countingDevice grants every lease and counts releases.
type countingDevice struct {
	mu       sync.Mutex
	denied   bool
	acquired int
	released int
}

func (d *countingDevice) Acquire(ctx context.Context) (*capture.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denied {
		return nil, capture.ErrPermissionDenied
	}
	d.acquired++
	return &capture.Handle{ID: uint64(d.acquired)}, nil
}

func (d *countingDevice) Release(h *capture.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
}

func (d *countingDevice) counts() (acquired, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired, d.released
}

// gatedGenerator answers "SAFE" for every prompt; prompts containing a held
// word block until released.
type gatedGenerator struct {
	hold    string
	started chan string
	release chan struct{}
}

func newGatedGenerator(hold string) *gatedGenerator {
	return &gatedGenerator{hold: hold, started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gatedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.started <- prompt
	if g.hold != "" && strings.Contains(prompt, g.hold) {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "SAFE", nil
}

// fakeRelay records what sessions publish.
type fakeRelay struct {
	mu        sync.Mutex
	published []models.ChatMessage
	closed    []string
}

func (r *fakeRelay) PublishMessage(ctx context.Context, roomID string, msg models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, msg)
	return nil
}

func (r *fakeRelay) CloseRoom(ctx context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, roomID)
	return nil
}

func (r *fakeRelay) messages() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChatMessage(nil), r.published...)
}

func (r *fakeRelay) closedRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(prompt)
	return args.String(0), args.Error(1)
}
