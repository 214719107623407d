package chathub_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/chathub"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/moderation"
	"liveflow/backend/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func tagOf(t models.IdentityTag) *models.IdentityTag { return &t }

type harness struct {
	sess  *chathub.Session
	out   chan models.ServerEvent
	prov  *stubProvider
	dev   *countingDevice
	sched *manualScheduler
}

func newHarness(t *testing.T, prefs models.UserPreferences, configure func(*chathub.SessionDeps)) *harness {
	t.Helper()
	h := &harness{
		out:   make(chan models.ServerEvent, 1024),
		prov:  newStubProvider(),
		dev:   &countingDevice{},
		sched: &manualScheduler{},
	}
	deps := chathub.SessionDeps{Provider: h.prov, Device: h.dev, Scheduler: h.sched}
	if configure != nil {
		configure(&deps)
	}
	h.sess = chathub.NewSession("sess_a", prefs, h.out, deps)
	t.Cleanup(h.sess.Close)
	return h
}

func defaultPrefs() models.UserPreferences {
	return models.UserPreferences{SelfIdentity: tagOf(models.Man)}
}

func (h *harness) nextCall(t *testing.T) *pendingMatch {
	t.Helper()
	select {
	case pm := <-h.prov.calls:
		return pm
	case <-time.After(waitFor):
		t.Fatal("expected a FindMatch call")
		return nil
	}
}

func (h *harness) connect(t *testing.T, p models.Partner) {
	t.Helper()
	h.nextCall(t).result <- p
	require.Eventually(t, func() bool { return h.sess.State() == models.StateConnected }, waitFor, 5*time.Millisecond)
}

func (h *harness) start(t *testing.T, p models.Partner) {
	t.Helper()
	require.NoError(t, h.sess.Start(context.Background()))
	h.connect(t, p)
}

func (h *harness) events() []models.ServerEvent {
	var evs []models.ServerEvent
	for {
		select {
		case ev := <-h.out:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func texts(msgs []models.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestStart_RequiresSelfIdentity(t *testing.T) {
	h := newHarness(t, models.UserPreferences{}, nil)

	err := h.sess.Start(context.Background())

	assert.ErrorIs(t, err, models.ErrIdentityRequired)
	assert.Equal(t, models.StateIdle, h.sess.State())
	acquired, _ := h.dev.counts()
	assert.Zero(t, acquired)
}

func TestStart_PermissionDeniedLeavesIdle(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.dev.denied = true

	err := h.sess.Start(context.Background())

	assert.ErrorIs(t, err, capture.ErrPermissionDenied)
	assert.Equal(t, models.StateIdle, h.sess.State())
	assert.Empty(t, h.prov.calls)

	evs := h.events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, models.EventState, last.Type)
	assert.Equal(t, models.StateIdle, last.State)
}

func TestStart_BannedSession(t *testing.T) {
	bans := new(MockStorage)
	bans.On("IsSessionBanned", "sess_a").Return(true, nil)
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) { d.Bans = bans })

	err := h.sess.Start(context.Background())

	assert.ErrorIs(t, err, chathub.ErrBanned)
	assert.Equal(t, models.StateIdle, h.sess.State())
	acquired, _ := h.dev.counts()
	assert.Zero(t, acquired)
	bans.AssertExpectations(t)
}

func TestStart_TwiceIsRejected(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	require.NoError(t, h.sess.Start(context.Background()))

	assert.ErrorIs(t, h.sess.Start(context.Background()), chathub.ErrAlreadyActive)
	assert.Equal(t, models.StateSearching, h.sess.State())
}

func TestFirstMatch_AnnouncesPartnerIdentity(t *testing.T) {
	sched := &manualScheduler{}
	prov := chathub.NewSimulatedProvider(sched)
	prov.Pick = func(n int) int { return 0 }
	prefs := models.UserPreferences{
		SelfIdentity:      tagOf(models.Man),
		DesiredIdentities: []models.IdentityTag{models.Woman},
	}
	out := make(chan models.ServerEvent, 1024)
	sess := chathub.NewSession("sess_a", prefs, out, chathub.SessionDeps{
		Provider:  prov,
		Device:    &countingDevice{},
		Scheduler: sched,
	})
	t.Cleanup(sess.Close)

	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool { return sched.Pending() == 1 }, waitFor, 5*time.Millisecond)

	sched.Advance(2999 * time.Millisecond)
	assert.Equal(t, models.StateSearching, sess.State())

	sched.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return sess.State() == models.StateConnected }, waitFor, 5*time.Millisecond)

	msgs := sess.Transcript()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Matched with woman.", msgs[0].Text)
	assert.Equal(t, models.SenderSystem, msgs[0].Sender)
	assert.Equal(t, 180, sess.Remaining())
	require.NotNil(t, sess.Partner())
	assert.True(t, sess.Partner().Simulated)
}

func TestFirstMatch_UsesLiteralTag(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{Identity: tagOf(models.TransWoman), Simulated: true})

	assert.Equal(t, []string{"Matched with trans_woman."}, texts(h.sess.Transcript()))
}

func TestFirstMatch_WithoutIdentity(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{SessionID: "sess_b"})

	assert.Equal(t, []string{"Matched."}, texts(h.sess.Transcript()))
}

func TestCountdown_ExpiresIntoSearching(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{Identity: tagOf(models.Woman), Simulated: true})
	_, err := h.sess.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	h.events()

	h.sched.Advance(179 * time.Second)
	assert.Equal(t, models.StateConnected, h.sess.State())
	assert.Equal(t, 1, h.sess.Remaining())

	ticks := 0
	for _, ev := range h.events() {
		if ev.Type == models.EventTick {
			ticks++
		}
	}
	assert.Equal(t, 179, ticks)

	h.sched.Advance(time.Second)
	assert.Equal(t, models.StateSearching, h.sess.State())
	assert.Empty(t, h.sess.Transcript())
	assert.Equal(t, 180, h.sess.Remaining())
	assert.Zero(t, h.sched.Pending())

	pm := h.nextCall(t)
	assert.True(t, pm.req.Rematch)
}

func TestSkip_ResetsAndRematches(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{Identity: tagOf(models.Woman), Simulated: true})
	_, err := h.sess.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	h.sched.Advance(30 * time.Second)
	require.Equal(t, 150, h.sess.Remaining())

	require.NoError(t, h.sess.Skip())

	assert.Equal(t, models.StateSearching, h.sess.State())
	assert.Empty(t, h.sess.Transcript())
	assert.Equal(t, 180, h.sess.Remaining())
	assert.Zero(t, h.sched.Pending())

	pm := h.nextCall(t)
	assert.True(t, pm.req.Rematch)
	pm.result <- models.Partner{Identity: tagOf(models.Other), Simulated: true}
	require.Eventually(t, func() bool { return h.sess.State() == models.StateConnected }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"New match found!"}, texts(h.sess.Transcript()))
	assert.Equal(t, 1, h.sched.Pending())
}

func TestSkip_RequiresConnected(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	assert.ErrorIs(t, h.sess.Skip(), chathub.ErrNotConnected)

	require.NoError(t, h.sess.Start(context.Background()))
	assert.ErrorIs(t, h.sess.Skip(), chathub.ErrNotConnected)
}

func TestStop_ReleasesDeviceOnce(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{Simulated: true})

	h.sess.Stop()
	h.sess.Stop()

	acquired, released := h.dev.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Equal(t, models.StateIdle, h.sess.State())
	assert.Empty(t, h.sess.Transcript())
	assert.Zero(t, h.sched.Pending())
}

func TestStop_WhileSearchingCancelsSearch(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	require.NoError(t, h.sess.Start(context.Background()))
	pm := h.nextCall(t)

	h.sess.Stop()

	require.Eventually(t, func() bool { return pm.ctx.Err() != nil }, waitFor, 5*time.Millisecond)
	pm.result <- models.Partner{Simulated: true}
	assert.Never(t, func() bool { return h.sess.State() != models.StateIdle }, 50*time.Millisecond, 5*time.Millisecond)
	_, released := h.dev.counts()
	assert.Equal(t, 1, released)
}

func TestStaleMatchIsDiscarded(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	require.NoError(t, h.sess.Start(context.Background()))
	stale := h.nextCall(t)
	h.sess.Stop()
	require.NoError(t, h.sess.Start(context.Background()))
	fresh := h.nextCall(t)

	stale.result <- models.Partner{Identity: tagOf(models.Woman), Simulated: true}
	assert.Never(t, func() bool { return h.sess.State() == models.StateConnected }, 50*time.Millisecond, 5*time.Millisecond)

	fresh.result <- models.Partner{Identity: tagOf(models.NonBinary), Simulated: true}
	require.Eventually(t, func() bool { return h.sess.State() == models.StateConnected }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"Matched with non binary."}, texts(h.sess.Transcript()))
}

func TestMatchFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	require.NoError(t, h.sess.Start(context.Background()))

	h.nextCall(t).err <- assert.AnError

	require.Eventually(t, func() bool { return h.sess.State() == models.StateIdle }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, released := h.dev.counts()
		return released == 1
	}, waitFor, 5*time.Millisecond)
}

func TestSendMessage_Normalizes(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	h.start(t, models.Partner{Simulated: true})

	_, err := h.sess.SendMessage(context.Background(), "   \n\t ")
	assert.ErrorIs(t, err, chathub.ErrEmptyMessage)

	msg, err := h.sess.SendMessage(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, models.SenderYou, msg.Sender)
	assert.True(t, strings.HasPrefix(msg.ID, "msg-"))

	msg, err = h.sess.SendMessage(context.Background(), strings.Repeat("é", 600))
	require.NoError(t, err)
	assert.Equal(t, 500, utf8.RuneCountInString(msg.Text))

	assert.Equal(t, []string{"Matched.", "hello", msg.Text}, texts(h.sess.Transcript()))
}

func TestSendMessage_RequiresConnected(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)

	_, err := h.sess.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, chathub.ErrNotConnected)
	assert.Empty(t, h.sess.Transcript())
}

func TestSendMessage_LocalFilterRejects(t *testing.T) {
	gen := newGatedGenerator("")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{
			Local:  moderation.NewBlocklist([]string{"spam"}),
			Remote: moderation.NewRemoteGate(gen, time.Second, moderation.FailOpen),
		}
	})
	h.start(t, models.Partner{Simulated: true})
	h.events()

	_, err := h.sess.SendMessage(context.Background(), "buy SPAM now")

	assert.ErrorIs(t, err, moderation.ErrMessageRejected)
	assert.Equal(t, []string{"Matched."}, texts(h.sess.Transcript()))
	assert.Empty(t, gen.started)
	evs := h.events()
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventWarning, evs[0].Type)
	assert.Equal(t, "message_rejected", evs[0].Code)
}

func TestSendMessage_RemoteVerdictRejects(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("Generate", mock.Anything).Return("UNSAFE", nil)
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, time.Second, moderation.FailOpen)}
	})
	h.start(t, models.Partner{Simulated: true})

	_, err := h.sess.SendMessage(context.Background(), "hello")

	assert.ErrorIs(t, err, moderation.ErrMessageRejected)
	assert.Len(t, h.sess.Transcript(), 1)
}

func TestSubmit_PreservesOrderWhileVerdictPending(t *testing.T) {
	gen := newGatedGenerator("first")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, 0, moderation.FailOpen)}
	})
	h.start(t, models.Partner{Simulated: true})

	h.sess.Submit("first")
	<-gen.started
	h.sess.Submit("second")
	assert.Never(t, func() bool { return h.sess.Transcript()[len(h.sess.Transcript())-1].Text == "second" }, 50*time.Millisecond, 5*time.Millisecond)

	close(gen.release)

	require.Eventually(t, func() bool { return len(h.sess.Transcript()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"Matched.", "first", "second"}, texts(h.sess.Transcript()))
}

func TestSubmit_VerdictAfterSkipIsDiscarded(t *testing.T) {
	gen := newGatedGenerator("hello")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, 0, moderation.FailOpen)}
	})
	h.start(t, models.Partner{Simulated: true})

	h.sess.Submit("hello")
	<-gen.started
	require.NoError(t, h.sess.Skip())
	h.connect(t, models.Partner{Simulated: true})

	h.sess.Submit("after")
	require.Eventually(t, func() bool { return len(h.sess.Transcript()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"New match found!", "after"}, texts(h.sess.Transcript()))
}

func TestSubmit_VerdictAfterStopIsDiscarded(t *testing.T) {
	gen := newGatedGenerator("hello")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, 0, moderation.FailOpen)}
	})
	h.start(t, models.Partner{Simulated: true})

	h.sess.Submit("hello")
	<-gen.started
	h.sess.Stop()

	assert.Never(t, func() bool { return len(h.sess.Transcript()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, models.StateIdle, h.sess.State())
}

func warningCodes(evs []models.ServerEvent) []string {
	var out []string
	for _, ev := range evs {
		if ev.Type == models.EventWarning {
			out = append(out, ev.Code)
		}
	}
	return out
}

func TestSubmit_FailClosedVerdictAfterSkipIsSilent(t *testing.T) {
	gen := newGatedGenerator("hello")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, 0, moderation.FailClosed)}
	})
	h.start(t, models.Partner{Simulated: true})

	h.sess.Submit("hello")
	<-gen.started
	require.NoError(t, h.sess.Skip())
	h.connect(t, models.Partner{Simulated: true})
	h.events()

	h.sess.Submit("after")
	require.Eventually(t, func() bool { return len(h.sess.Transcript()) == 2 }, waitFor, 5*time.Millisecond)

	assert.Equal(t, []string{"New match found!", "after"}, texts(h.sess.Transcript()))
	assert.Empty(t, warningCodes(h.events()))
}

func TestSubmit_FailClosedVerdictAfterStopIsSilent(t *testing.T) {
	gen := newGatedGenerator("hello")
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Moderator = &moderation.Moderator{Remote: moderation.NewRemoteGate(gen, 0, moderation.FailClosed)}
	})
	h.start(t, models.Partner{Simulated: true})

	h.sess.Submit("hello")
	<-gen.started
	h.sess.Stop()
	// Queued behind "hello"; its not_connected error marks that the inbox
	// has drained.
	h.sess.Submit("later")

	var evs []models.ServerEvent
	require.Eventually(t, func() bool {
		evs = append(evs, h.events()...)
		for _, ev := range evs {
			if ev.Type == models.EventError && ev.Code == "not_connected" {
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)

	assert.Empty(t, warningCodes(evs))
	assert.Equal(t, models.StateIdle, h.sess.State())
}

func TestSendMessage_RateLimited(t *testing.T) {
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) {
		d.Limiter = ratelimit.New(0.001, 1)
	})
	h.start(t, models.Partner{Simulated: true})

	_, err := h.sess.SendMessage(context.Background(), "one")
	require.NoError(t, err)
	_, err = h.sess.SendMessage(context.Background(), "two")

	assert.ErrorIs(t, err, chathub.ErrRateLimited)
	assert.Equal(t, []string{"Matched.", "one"}, texts(h.sess.Transcript()))
}

func TestRoomTraffic(t *testing.T) {
	relay := &fakeRelay{}
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) { d.Relay = relay })
	h.start(t, models.Partner{SessionID: "sess_b", RoomID: "room1", Identity: tagOf(models.Woman)})

	_, err := h.sess.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	published := relay.messages()
	require.Len(t, published, 1)
	assert.Equal(t, "room1", published[0].RoomID)
	assert.Equal(t, "sess_a", published[0].SenderID)

	h.sess.Deliver(models.ChatMessage{ID: "msg_1", SenderID: "sess_b", RoomID: "room1", Text: "hey", Type: models.MessageText})
	h.sess.Deliver(models.ChatMessage{ID: "msg_2", SenderID: "sess_a", RoomID: "room1", Text: "echo", Type: models.MessageText})
	h.sess.Deliver(models.ChatMessage{ID: "msg_3", SenderID: "sess_c", RoomID: "room2", Text: "other", Type: models.MessageText})

	msgs := h.sess.Transcript()
	assert.Equal(t, []string{"Matched with woman.", "hi", "hey"}, texts(msgs))
	assert.Equal(t, models.SenderStranger, msgs[2].Sender)

	h.sess.Deliver(models.ChatMessage{SenderID: "sess_b", RoomID: "room1", Type: models.MessagePartnerLeft})
	assert.Equal(t, models.StateSearching, h.sess.State())
	assert.Empty(t, h.sess.Transcript())
	require.Eventually(t, func() bool { return len(relay.closedRooms()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Len(t, relay.messages(), 1)
}

func TestSkip_NotifiesPartner(t *testing.T) {
	relay := &fakeRelay{}
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) { d.Relay = relay })
	h.start(t, models.Partner{SessionID: "sess_b", RoomID: "room1"})

	require.NoError(t, h.sess.Skip())

	require.Eventually(t, func() bool { return len(relay.closedRooms()) == 1 }, waitFor, 5*time.Millisecond)
	msgs := relay.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessagePartnerLeft, msgs[0].Type)
	assert.Equal(t, "room1", msgs[0].RoomID)
}

func TestReport_FilesComplaintAndSkips(t *testing.T) {
	complaints := new(MockComplaints)
	complaints.On("File", mock.MatchedBy(func(c *models.Complaint) bool {
		return c.ReporterID == "sess_a" &&
			c.TargetID == "sess_b" &&
			c.Reason == "harassment" &&
			assert.ObjectsAreEqual([]string{"system: Matched.", "you: hi"}, []string(c.LoggedMessages))
	})).Return(nil).Once()
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) { d.Complaints = complaints })
	h.start(t, models.Partner{SessionID: "sess_b"})
	_, err := h.sess.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, h.sess.Report(context.Background(), "harassment"))

	assert.Equal(t, models.StateSearching, h.sess.State())
	assert.Empty(t, h.sess.Transcript())
	complaints.AssertExpectations(t)
}

func TestReport_SimulatedPartner(t *testing.T) {
	complaints := new(MockComplaints)
	complaints.On("File", mock.MatchedBy(func(c *models.Complaint) bool {
		return c.TargetID == "simulated"
	})).Return(nil).Once()
	h := newHarness(t, defaultPrefs(), func(d *chathub.SessionDeps) { d.Complaints = complaints })
	h.start(t, models.Partner{Simulated: true})

	require.NoError(t, h.sess.Report(context.Background(), "spam"))
	complaints.AssertExpectations(t)
}

func TestReport_RequiresConnected(t *testing.T) {
	h := newHarness(t, defaultPrefs(), nil)
	assert.ErrorIs(t, h.sess.Report(context.Background(), "spam"), chathub.ErrNotConnected)
}

func TestSetPreferences_OnlyWhileIdle(t *testing.T) {
	h := newHarness(t, models.UserPreferences{}, nil)
	require.NoError(t, h.sess.SetPreferences(defaultPrefs()))
	require.NoError(t, h.sess.Start(context.Background()))

	assert.ErrorIs(t, h.sess.SetPreferences(models.UserPreferences{}), chathub.ErrAlreadyActive)
}
