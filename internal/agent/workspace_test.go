package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/agent-handoff/internal/channel"
	"github.com/Rrens/agent-handoff/internal/channel/channeltest"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
)

const (
	hubURL      = "ws://hub.test"
	notifierURL = "ws://hub.test/ws/agents/a1"
)

func chatURL(id string) string {
	return "ws://hub.test/ws/tickets/" + id + "/agent"
}

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) add(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alerts) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

type fixture struct {
	w       *Workspace
	dialer  *channeltest.Dialer
	backend *MockBackend
	alerts  *alerts
	fetches atomic.Int32
}

func newFixture(t *testing.T, rooms []domain.ActiveRoom, policy ReconnectPolicy) *fixture {
	t.Helper()
	f := &fixture{
		dialer:  &channeltest.Dialer{},
		backend: new(MockBackend),
		alerts:  &alerts{},
	}
	if rooms == nil {
		rooms = []domain.ActiveRoom{}
	}
	f.backend.On("ActiveRooms", mock.Anything).
		Run(func(mock.Arguments) { f.fetches.Add(1) }).
		Return(rooms, nil)
	f.w = New(Config{
		BaseURL:   hubURL,
		Identity:  Identity{ID: "a1", Name: "Agent One"},
		Dialer:    f.dialer,
		Backend:   f.backend,
		Reconnect: policy,
	}, WithOnAlert(f.alerts.add))
	t.Cleanup(f.w.Logout)
	return f
}

func (f *fixture) connect(t *testing.T) *channeltest.Conn {
	t.Helper()
	require.NoError(t, f.w.Connect(context.Background()))
	conn := f.dialer.Find(notifierURL)
	require.NotNil(t, conn)
	return conn
}

func (f *fixture) session(t *testing.T, id string) domain.Session {
	t.Helper()
	s, ok := f.w.Session(protocol.TicketID(id))
	require.True(t, ok, "session %s not found", id)
	return s
}

func (f *fixture) hasSession(id string) bool {
	_, ok := f.w.Session(protocol.TicketID(id))
	return ok
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func frameField(t *testing.T, frame, key string) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(frame), &m))
	v, _ := m[key].(string)
	return v
}

func ids(sessions []domain.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}

func TestClaim_Success(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)

	notifier.Push(`{"type":"new_ticket","ticket_id":"T1","user_name":"Asha"}`)
	eventually(t, func() bool { return f.hasSession("T1") })
	s := f.session(t, "T1")
	assert.Equal(t, domain.SessionWaiting, s.Status)
	assert.Equal(t, "Asha", s.User.Name)

	require.NoError(t, f.w.Claim(context.Background(), "T1"))

	claim := notifier.Sent()
	require.Len(t, claim, 1)
	assert.Equal(t, "claim", frameField(t, claim[0], "action"))
	assert.Equal(t, "T1", frameField(t, claim[0], "ticket_id"))

	chat := f.dialer.Find(chatURL("T1"))
	require.NotNil(t, chat)
	sent := chat.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "init", frameField(t, sent[0], "type"))
	assert.Equal(t, "a1", frameField(t, sent[0], "agent_id"))
	assert.Equal(t, "Agent One", frameField(t, sent[0], "agent_name"))

	s = f.session(t, "T1")
	assert.Equal(t, domain.SessionAssigned, s.Status)
	assert.True(t, s.ClaimedByMe)
	assert.Equal(t, "a1", s.ClaimedBy)
	assert.Equal(t, protocol.TicketID("T1"), f.w.ActiveChat())
	assert.Empty(t, f.w.Waiting())
	assert.Equal(t, []string{"T1"}, ids(f.w.Mine()))
}

func TestClaim_NotifierNotOpen(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.w.Claim(context.Background(), "T1")

	assert.ErrorIs(t, err, ErrNotifierNotOpen)
	assert.Empty(t, f.dialer.Conns(), "nothing dialed")
	assert.Len(t, f.alerts.all(), 1)
}

func TestClaim_AfterNotifierClosed(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)

	notifier.RemoteClose(websocket.StatusGoingAway, "restart")
	eventually(t, func() bool { return f.w.NotifierState() == channel.StateClosed })

	assert.ErrorIs(t, f.w.Claim(context.Background(), "T1"), ErrNotifierNotOpen)
	assert.Empty(t, notifier.Sent())
	assert.Len(t, f.dialer.Conns(), 1)
}

func TestClaim_LostRace(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)

	notifier.Push(`{"type":"new_ticket","ticket_id":"T1","user_name":"Asha"}`)
	eventually(t, func() bool { return len(f.w.Waiting()) == 1 })

	notifier.Push(`{"type":"ticket_claimed","ticket_id":"T1"}`)
	eventually(t, func() bool { return len(f.w.Waiting()) == 0 })

	s := f.session(t, "T1")
	assert.Equal(t, domain.SessionAssigned, s.Status)
	assert.False(t, s.ClaimedByMe)
	assert.Nil(t, f.dialer.Find(chatURL("T1")), "no chat channel opened")
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
}

func TestClaimOwnership_ClaimedByField(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.w.claims["T1"] = claimPending
	f.w.handleNotifier(protocol.DecodeNotifier([]byte(`{"type":"ticket_claimed","ticket_id":"T1","claimed_by":"a2"}`)))

	s := f.session(t, "T1")
	assert.False(t, s.ClaimedByMe, "claimed_by overrides a pending claim")
	assert.Equal(t, "a2", s.ClaimedBy)
	assert.Equal(t, claimLost, f.w.claims["T1"])

	f.w.handleNotifier(protocol.DecodeNotifier([]byte(`{"type":"ticket_claimed","ticket_id":"T2","claimed_by":"a1"}`)))
	assert.True(t, f.session(t, "T2").ClaimedByMe)
}

func TestClaimOwnership_CorrelatesPendingClaim(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.w.claims["T1"] = claimPending
	f.w.handleNotifier(protocol.DecodeNotifier([]byte(`{"type":"ticket_claimed","ticket_id":"T1"}`)))

	s := f.session(t, "T1")
	assert.True(t, s.ClaimedByMe)
	assert.Equal(t, "a1", s.ClaimedBy)
	assert.Equal(t, claimWon, f.w.claims["T1"])

	f.w.handleNotifier(protocol.DecodeNotifier([]byte(`{"type":"ticket_claimed","ticket_id":"T2"}`)))
	assert.False(t, f.session(t, "T2").ClaimedByMe, "no pending claim, someone else")
}

func TestClaim_RejectedWhileOpeningChat(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)

	f.dialer.Prepare = func(c *channeltest.Conn) {
		if c.URL == chatURL("T1") {
			f.w.handleNotifier(protocol.DecodeNotifier([]byte(`{"type":"claim_rejected","ticket_id":"T1","claimed_by":"a2"}`)))
		}
	}

	err := f.w.Claim(context.Background(), "T1")

	assert.ErrorIs(t, err, ErrClaimLost)
	assert.True(t, f.dialer.Find(chatURL("T1")).Closed())
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
	s := f.session(t, "T1")
	assert.Equal(t, domain.SessionAssigned, s.Status)
	assert.False(t, s.ClaimedByMe)
	assert.Equal(t, "a2", s.ClaimedBy)
}

func TestClaim_ChatDialFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	f.dialer.Prepare = nil

	f.dialer.FailDials(errors.New("refused"))
	err := f.w.Claim(context.Background(), "T1")

	require.Error(t, err)
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
	assert.NotContains(t, f.w.claims, protocol.TicketID("T1"))
}

func TestClaim_SecondClaimClosesFirstChat(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)

	require.NoError(t, f.w.Claim(context.Background(), "A"))
	require.NoError(t, f.w.Claim(context.Background(), "B"))

	a := f.dialer.Find(chatURL("A"))
	b := f.dialer.Find(chatURL("B"))
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())
	assert.Equal(t, protocol.TicketID("B"), f.w.ActiveChat())

	open := 0
	for _, c := range f.dialer.Conns() {
		if strings.Contains(c.URL, "/ws/tickets/") && !c.Closed() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestChat_TranscriptAndSuppression(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))
	chat := f.dialer.Find(chatURL("T1"))

	chat.Push(`{"type":"agent_joined","agent_id":"a1","agent_name":"Agent One"}`)
	chat.Push(`{"type":"text","text":"my keys are locked"}`)
	chat.Push(`is anyone there`)
	chat.Push(`{"type":"system","text":"customer is typing"}`)

	eventually(t, func() bool { return len(f.session(t, "T1").Messages) == 3 })
	require.NoError(t, f.w.Send(context.Background(), "on it"))

	msgs := f.session(t, "T1").Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, "my keys are locked", msgs[0].Text)
	assert.Equal(t, domain.SenderUser, msgs[1].Sender)
	assert.Equal(t, "is anyone there", msgs[1].Text)
	assert.Equal(t, domain.SenderSystem, msgs[2].Sender)
	assert.Equal(t, domain.SenderAgent, msgs[3].Sender)
	assert.Equal(t, "on it", msgs[3].Text)
	assert.Equal(t, 0, f.session(t, "T1").UnreadCount)

	sent := chat.Sent()
	assert.Equal(t, "on it", sent[len(sent)-1])
}

func TestRelease(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))
	chat := f.dialer.Find(chatURL("T1"))

	require.NoError(t, f.w.Release(context.Background()))

	sent := chat.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "release", frameField(t, sent[1], "action"))
	assert.Equal(t, "T1", frameField(t, sent[1], "ticket_id"))
	assert.True(t, chat.Closed())
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
	assert.Equal(t, domain.SessionAssigned, f.session(t, "T1").Status, "status is left to the server")

	assert.ErrorIs(t, f.w.Send(context.Background(), "still there?"), ErrNoActiveChat)
	assert.Len(t, chat.Sent(), 2)
}

func TestRelease_Idempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))
	chat := f.dialer.Find(chatURL("T1"))

	require.NoError(t, f.w.Release(context.Background()))
	assert.ErrorIs(t, f.w.Release(context.Background()), ErrNoActiveChat)
	assert.ErrorIs(t, f.w.Release(context.Background()), ErrNoActiveChat)

	assert.Len(t, chat.Sent(), 2)
}

func TestRelease_WithoutChat(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)

	assert.ErrorIs(t, f.w.Release(context.Background()), ErrNoActiveChat)
	assert.Empty(t, notifier.Sent())
	assert.Len(t, f.alerts.all(), 1)
}

func TestEnd(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))
	f.backend.On("CloseTicket", mock.Anything, "T1").Return(nil)

	require.NoError(t, f.w.End(context.Background()))

	assert.True(t, f.dialer.Find(chatURL("T1")).Closed())
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
	f.backend.AssertExpectations(t)
}

func TestEnd_BackendFailureStillClosesChat(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))
	f.backend.On("CloseTicket", mock.Anything, "T1").Return(errors.New("store down"))

	err := f.w.End(context.Background())

	assert.ErrorContains(t, err, "store down")
	assert.True(t, f.dialer.Find(chatURL("T1")).Closed())
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
}

func TestSnapshotMerge_LiveEventFirst(t *testing.T) {
	rooms := []domain.ActiveRoom{
		{TicketID: "T1", Status: domain.TicketStatusWaiting, UserName: "Asha"},
		{TicketID: "T2", Status: domain.TicketStatusWaiting, UserName: "stale"},
	}
	f := newFixture(t, rooms, nil)
	f.dialer.Prepare = func(c *channeltest.Conn) {
		c.Push(`{"type":"new_ticket","ticket_id":"T2","user_name":"Bo"}`)
	}

	f.connect(t)

	eventually(t, func() bool { return len(f.w.Sessions()) == 2 })
	assert.Equal(t, 1, strings.Count(strings.Join(ids(f.w.Sessions()), ","), "T2"))
}

func TestSnapshotMerge_LiveEventAfter(t *testing.T) {
	rooms := []domain.ActiveRoom{
		{TicketID: "T1", Status: domain.TicketStatusWaiting},
		{TicketID: "T2", Status: domain.TicketStatusWaiting},
		{TicketID: "T3", Status: domain.TicketStatusAssigned, AgentID: "a1"},
		{TicketID: "T4", Status: domain.TicketStatusAssigned, AgentID: "a9"},
	}
	f := newFixture(t, rooms, nil)
	notifier := f.connect(t)

	notifier.Push(`{"type":"new_ticket","ticket_id":"T2","user_name":"Bo"}`)
	eventually(t, func() bool { return f.session(t, "T2").User.Name == "Bo" })

	assert.Len(t, f.w.Sessions(), 4)
	assert.Equal(t, []string{"T1", "T2"}, ids(f.w.Waiting()))
	assert.Equal(t, []string{"T3"}, ids(f.w.Mine()))
}

func TestSnapshotFailureAlertsButStaysConnected(t *testing.T) {
	f := &fixture{dialer: &channeltest.Dialer{}, backend: new(MockBackend), alerts: &alerts{}}
	f.backend.On("ActiveRooms", mock.Anything).Return(nil, errors.New("502"))
	f.w = New(Config{
		BaseURL:  hubURL,
		Identity: Identity{ID: "a1"},
		Dialer:   f.dialer,
		Backend:  f.backend,
	}, WithOnAlert(f.alerts.add))
	defer f.w.Logout()

	require.NoError(t, f.w.Connect(context.Background()))

	assert.Equal(t, channel.StateOpen, f.w.NotifierState())
	assert.Len(t, f.alerts.all(), 1)
}

func TestNotifierEvents(t *testing.T) {
	var raw []string
	var mu sync.Mutex
	f := newFixture(t, nil, nil)
	f.w.onRaw = func(text string) {
		mu.Lock()
		defer mu.Unlock()
		raw = append(raw, text)
	}
	notifier := f.connect(t)

	notifier.Push(`{"type":"new_ticket","ticket_id":"T1"}`)
	notifier.Push(`{"type":"ticket_closed","ticket_id":"T1"}`)
	notifier.Push(`{"type":"agent_status","agent_id":"a2","status":"busy"}`)
	notifier.Push(`maintenance at 5pm`)

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(raw) == 1
	})
	assert.Equal(t, "maintenance at 5pm", raw[0])
	assert.Equal(t, domain.SessionClosed, f.session(t, "T1").Status)
	assert.Equal(t, domain.AgentBusy, f.w.OnlineAgents()["a2"])
}

func TestNewTicket_RequeueKeepsActiveChat(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))

	notifier.Push(`{"type":"ticket_claimed","ticket_id":"T2","claimed_by":"a2"}`)
	notifier.Push(`{"type":"new_ticket","ticket_id":"T1"}`)
	notifier.Push(`{"type":"new_ticket","ticket_id":"T2"}`)

	eventually(t, func() bool { return f.session(t, "T2").Status == domain.SessionWaiting })
	assert.Equal(t, domain.SessionAssigned, f.session(t, "T1").Status)
}

func TestSetStatus_Success(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.backend.On("UpdateStatus", mock.Anything, "a1", domain.AgentAway).Return(nil)

	require.NoError(t, f.w.SetStatus(context.Background(), domain.AgentAway))

	assert.Equal(t, domain.AgentAway, f.w.Status())
	f.backend.AssertExpectations(t)
}

func TestSetStatus_RollbackOnFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.Equal(t, domain.AgentOnline, f.w.Status())

	var during domain.AgentStatus
	f.backend.On("UpdateStatus", mock.Anything, "a1", domain.AgentBusy).
		Run(func(mock.Arguments) { during = f.w.Status() }).
		Return(errors.New("503 service unavailable"))

	err := f.w.SetStatus(context.Background(), domain.AgentBusy)

	require.Error(t, err)
	assert.Equal(t, domain.AgentBusy, during, "applied before confirmation")
	assert.Equal(t, domain.AgentOnline, f.w.Status())
	assert.Len(t, f.alerts.all(), 1)
}

func TestSetStatus_RollbackKeepsNewerChange(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.backend.On("UpdateStatus", mock.Anything, "a1", domain.AgentBusy).
		Run(func(mock.Arguments) {
			f.w.mu.Lock()
			f.w.status = domain.AgentAway
			f.w.mu.Unlock()
		}).
		Return(errors.New("timeout"))

	require.Error(t, f.w.SetStatus(context.Background(), domain.AgentBusy))
	assert.Equal(t, domain.AgentAway, f.w.Status())
}

func TestSetStatus_Invalid(t *testing.T) {
	f := newFixture(t, nil, nil)

	assert.ErrorIs(t, f.w.SetStatus(context.Background(), "sleeping"), domain.ErrInvalidStatus)
	f.backend.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))

	f.w.Logout()
	f.w.Logout()

	assert.Equal(t, []string{chatURL("T1"), notifierURL}, f.dialer.ClosedURLs())
	assert.True(t, notifier.Closed())
	assert.Empty(t, f.w.Sessions())
	assert.Equal(t, protocol.TicketID(""), f.w.ActiveChat())
	assert.ErrorIs(t, f.w.Connect(context.Background()), ErrLoggedOut)
}

func TestNoReconnectByDefault(t *testing.T) {
	f := newFixture(t, nil, nil)
	notifier := f.connect(t)

	notifier.RemoteClose(websocket.StatusInternalError, "crash")

	eventually(t, func() bool { return f.w.NotifierState() == channel.StateClosed })
	assert.Never(t, func() bool { return len(f.dialer.Conns()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.NotEmpty(t, f.alerts.all())
}

func TestReconnectWithBackoff(t *testing.T) {
	f := newFixture(t, nil, Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, Attempts: 3})
	notifier := f.connect(t)

	notifier.RemoteClose(websocket.StatusInternalError, "crash")

	eventually(t, func() bool { return len(f.dialer.Conns()) == 2 })
	eventually(t, func() bool { return f.w.NotifierState() == channel.StateOpen })
	eventually(t, func() bool { return f.fetches.Load() == 2 })
}

func TestReconnect_GivesUp(t *testing.T) {
	f := newFixture(t, nil, Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Attempts: 2})
	notifier := f.connect(t)

	f.dialer.FailDials(errors.New("refused"))
	notifier.RemoteClose(websocket.StatusInternalError, "crash")

	eventually(t, func() bool {
		for _, msg := range f.alerts.all() {
			if strings.Contains(msg, "gave up") {
				return true
			}
		}
		return false
	})
	assert.Equal(t, channel.StateClosed, f.w.NotifierState())
}

func TestBackoff_Next(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Attempts: 5}

	var delays []time.Duration
	for i := 0; ; i++ {
		d, ok := b.Next(i)
		if !ok {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}, delays)

	_, ok := NoReconnect{}.Next(0)
	assert.False(t, ok)
}

func TestChat_ClaimRejectedFrameMarksLoss(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.connect(t)
	require.NoError(t, f.w.Claim(context.Background(), "T1"))

	chat := f.dialer.Find(chatURL("T1"))
	chat.Push(`{"type":"claim_rejected","ticket_id":"T1","claimed_by":"a2"}`)

	eventually(t, func() bool { return !f.session(t, "T1").ClaimedByMe })
	s := f.session(t, "T1")
	assert.Equal(t, "a2", s.ClaimedBy)
	assert.Empty(t, s.Messages, "rejection is not conversation content")
}
