package session

import (
	"sync"
	"testing"
	"time"

	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/backkem/fix/pkg/store"
	"github.com/stretchr/testify/require"
)

var testID = sessionid.ID{BeginString: message.BeginStringFIX44, SenderCompID: "BUY", TargetCompID: "SELL"}

// fakeResponder records what the session transmits.
type fakeResponder struct {
	mu           sync.Mutex
	sent         []string
	disconnected bool
}

func (r *fakeResponder) Send(raw string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return false
	}
	r.sent = append(r.sent, raw)
	return true
}

func (r *fakeResponder) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func (r *fakeResponder) isDisconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

// take returns and forgets everything sent so far, parsed.
func (r *fakeResponder) take(t *testing.T) []*message.Message {
	t.Helper()
	r.mu.Lock()
	raws := r.sent
	r.sent = nil
	r.mu.Unlock()

	out := make([]*message.Message, 0, len(raws))
	for _, raw := range raws {
		m, err := message.Parse(raw, message.ParseOptions{Validate: true})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

// recordingApp counts callbacks.
type recordingApp struct {
	NullApplication
	logons     int
	logouts    int
	fromApp    []*message.Message
	fromAppErr error
	toAppErr   error
}

func (a *recordingApp) OnLogon(sessionid.ID)  { a.logons++ }
func (a *recordingApp) OnLogout(sessionid.ID) { a.logouts++ }

func (a *recordingApp) ToApp(*message.Message, sessionid.ID) error { return a.toAppErr }

func (a *recordingApp) FromApp(m *message.Message, _ sessionid.ID) error {
	a.fromApp = append(a.fromApp, m)
	return a.fromAppErr
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	s     *Session
	r     *fakeResponder
	app   *recordingApp
	clock *fakeClock
	store store.MessageStore
}

func defaultSettings() Settings {
	return Settings{
		HeartBtInt:       30 * time.Second,
		PersistMessages:  true,
		ValidateIncoming: true,
	}
}

func newHarness(t *testing.T, settings Settings, schedule *Schedule) *harness {
	t.Helper()
	h := &harness{
		r:     &fakeResponder{},
		app:   &recordingApp{},
		clock: &fakeClock{t: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)},
		store: store.NewMemoryStore(),
	}
	s, err := New(Config{
		ID:          testID,
		Store:       h.store,
		Application: h.app,
		Schedule:    schedule,
		Settings:    settings,
		Clock:       h.clock.now,
	})
	require.NoError(t, err)
	h.s = s
	return h
}

// loggedOn connects and completes the logon handshake.
func loggedOn(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, defaultSettings(), nil)
	require.NoError(t, h.s.Connect(h.r))
	h.s.NextMessage(inbound(1, message.MsgTypeLogon,
		message.Field{Tag: message.TagEncryptMethod, Value: "0"},
		message.Field{Tag: message.TagHeartBtInt, Value: "30"}))
	require.True(t, h.s.IsLoggedOn())
	h.r.take(t)
	return h
}

// inbound builds a raw message from the counterparty.
func inbound(seq int, msgType string, body ...message.Field) string {
	return inboundFrom("SELL", seq, msgType, body...)
}

func inboundFrom(sender string, seq int, msgType string, body ...message.Field) string {
	m := message.NewWithType(message.BeginStringFIX44, msgType)
	m.Header.SetField(message.TagSenderCompID, sender)
	m.Header.SetField(message.TagTargetCompID, "BUY")
	m.Header.SetInt(message.TagMsgSeqNum, seq)
	m.Header.SetField(message.TagSendingTime, "20260105-12:00:00.000")
	for _, f := range body {
		m.Body.SetField(f.Tag, f.Value)
	}
	return m.String()
}

func field(tag message.Tag, value string) message.Field {
	return message.Field{Tag: tag, Value: value}
}

func get(m *message.Message, tag message.Tag) string {
	if v, ok := m.Header.Get(tag); ok {
		return v
	}
	v, _ := m.Body.Get(tag)
	return v
}
