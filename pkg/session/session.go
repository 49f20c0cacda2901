package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/backkem/fix/pkg/store"
)

// Default protocol timeouts.
const (
	DefaultLogonTimeout  = 10 * time.Second
	DefaultLogoutTimeout = 2 * time.Second
)

// sendingTimeLayout is the UTCTimestamp layout of SendingTime (52).
const sendingTimeLayout = "20060102-15:04:05.000"

// Responder transmits on the connection currently attached to a session.
type Responder interface {
	// Send writes one raw message. It returns false if the connection can
	// no longer carry data.
	Send(raw string) bool

	// Disconnect closes the connection. It must be safe to call more than
	// once.
	Disconnect()
}

// Settings tune protocol behavior.
type Settings struct {
	// HeartBtInt is the heartbeat interval announced in Logon. Zero
	// disables heartbeats and test requests.
	HeartBtInt time.Duration

	// LogonTimeout bounds the wait for a Logon response.
	// Default: DefaultLogonTimeout
	LogonTimeout time.Duration

	// LogoutTimeout bounds the wait for a Logout response.
	// Default: DefaultLogoutTimeout
	LogoutTimeout time.Duration

	ResetOnLogon      bool
	ResetOnLogout     bool
	ResetOnDisconnect bool

	// PersistMessages stores outbound messages for resend. Without it every
	// resend request is answered with a gap fill.
	PersistMessages bool

	// ValidateIncoming checks header order, BodyLength and CheckSum of
	// inbound messages.
	ValidateIncoming bool

	// DefaultApplVerID is sent in Logon on FIXT sessions.
	DefaultApplVerID string
}

// Config configures a session.
type Config struct {
	ID    sessionid.ID
	Store store.MessageStore

	// Log receives traffic and events. Default: NullLog
	Log Log

	// Application receives callbacks. Default: NullApplication
	Application Application

	// Schedule is the trading-session window. Default: NonStopSchedule
	Schedule *Schedule

	// Dictionary supplies custom header fields and group layouts for
	// parsing. May be nil.
	Dictionary message.Dictionary

	Settings Settings

	// Table, if set, registers the session for SendToTarget.
	Table *Table

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// Session is one FIX session. Protocol state is guarded by an internal
// mutex; the connection state and enable flag are independent of it so the
// lifecycle manager can read them without waiting on message processing.
type Session struct {
	id       sessionid.ID
	app      Application
	store    store.MessageStore
	log      Log
	schedule *Schedule
	dict     message.Dictionary
	settings Settings
	table    *Table
	now      func() time.Time

	connState atomic.Int32
	enabled   atomic.Bool
	disposed  atomic.Bool

	mu                 sync.Mutex
	responder          Responder
	logonSent          bool
	logonReceived      bool
	logoutSent         bool
	resetSent          bool
	logonSentAt        time.Time
	logoutSentAt       time.Time
	lastSent           time.Time
	lastReceived       time.Time
	testRequests       int
	resendBegin        int
	resendEnd          int
	queue              map[int]*message.Message
	heartBtInt         time.Duration
	lastConnectAttempt time.Time
}

// New creates a session and calls Application.OnCreate.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Log == nil {
		cfg.Log = NullLog{}
	}
	if cfg.Application == nil {
		cfg.Application = NullApplication{}
	}
	if cfg.Schedule == nil {
		cfg.Schedule = NonStopSchedule()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Settings.LogonTimeout <= 0 {
		cfg.Settings.LogonTimeout = DefaultLogonTimeout
	}
	if cfg.Settings.LogoutTimeout <= 0 {
		cfg.Settings.LogoutTimeout = DefaultLogoutTimeout
	}

	s := &Session{
		id:         cfg.ID,
		app:        cfg.Application,
		store:      cfg.Store,
		log:        cfg.Log,
		schedule:   cfg.Schedule,
		dict:       cfg.Dictionary,
		settings:   cfg.Settings,
		table:      cfg.Table,
		now:        cfg.Clock,
		queue:      make(map[int]*message.Message),
		heartBtInt: cfg.Settings.HeartBtInt,
	}
	s.enabled.Store(true)

	if s.table != nil {
		if err := s.table.Add(s); err != nil {
			return nil, err
		}
	}
	s.app.OnCreate(s.id)
	s.log.OnEvent("Created session")
	return s, nil
}

// ID returns the session identity.
func (s *Session) ID() sessionid.ID { return s.id }

// Log returns the session's event log.
func (s *Session) Log() Log { return s.log }

// Store returns the session's message store.
func (s *Session) Store() store.MessageStore { return s.store }

// Schedule returns the session's trading window.
func (s *Session) Schedule() *Schedule { return s.schedule }

// ConnectionState returns the lifecycle state.
func (s *Session) ConnectionState() ConnectionState {
	return ConnectionState(s.connState.Load())
}

// SetConnectionState sets the lifecycle state. Only the lifecycle manager
// should call this.
func (s *Session) SetConnectionState(state ConnectionState) {
	s.connState.Store(int32(state))
}

// IsEnabled reports whether the session may log on.
func (s *Session) IsEnabled() bool { return s.enabled.Load() }

// Enable allows the session to log on.
func (s *Session) Enable() { s.enabled.Store(true) }

// Disable prevents further logons and, if logged on, initiates a logout.
func (s *Session) Disable() {
	s.enabled.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isLoggedOn() && !s.logoutSent {
		s.log.OnEvent("Initiated logout request")
		s.generateLogout("")
	}
}

// IsLoggedOn reports whether Logon was both sent and received.
func (s *Session) IsLoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoggedOn()
}

func (s *Session) isLoggedOn() bool {
	return s.logonSent && s.logonReceived
}

// IsSessionTime reports whether now is inside the trading window.
func (s *Session) IsSessionTime() bool {
	return s.schedule.IsSessionTime(s.now())
}

// IsNewSession reports whether the store's state belongs to an earlier
// trading window and must be reset before connecting.
func (s *Session) IsNewSession() bool {
	return s.schedule.IsNewSession(s.store.CreationTime(), s.now())
}

// HeartBtInt returns the heartbeat interval in effect.
func (s *Session) HeartBtInt() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartBtInt
}

// LastConnectAttempt returns when a connection was last attempted.
func (s *Session) LastConnectAttempt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConnectAttempt
}

// SetLastConnectAttempt records a connection attempt.
func (s *Session) SetLastConnectAttempt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConnectAttempt = t
}

// Connect attaches r as the session's connection and, when enabled and in
// session time, sends Logon.
func (s *Session) Connect(r Responder) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responder = r
	s.lastReceived = s.now()
	s.lastSent = s.lastReceived
	s.log.OnEvent("Connection established")

	if !s.IsEnabled() || !s.schedule.IsSessionTime(s.now()) {
		return nil
	}
	return s.initiateLogon()
}

func (s *Session) initiateLogon() error {
	if s.settings.ResetOnLogon {
		if err := s.store.Reset(); err != nil {
			s.storeFailure(err)
			return err
		}
		s.resetSent = true
	}
	s.log.OnEvent("Initiated logon request")
	return s.generateLogon()
}

// Disconnect detaches and closes the connection.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect(reason)
}

func (s *Session) disconnect(reason string) {
	if s.responder != nil {
		s.log.OnEvent(fmt.Sprintf("Session %s disconnecting: %s", s.id, reason))
		s.responder.Disconnect()
		s.responder = nil
	} else {
		s.log.OnEvent(fmt.Sprintf("Session %s already disconnected: %s", s.id, reason))
	}

	if s.logonReceived || s.logonSent {
		s.logonReceived = false
		s.logonSent = false
		s.app.OnLogout(s.id)
	}
	s.logoutSent = false
	s.resetSent = false
	s.testRequests = 0
	s.resendBegin, s.resendEnd = 0, 0
	s.queue = make(map[int]*message.Message)
	s.heartBtInt = s.settings.HeartBtInt

	if s.settings.ResetOnDisconnect {
		if err := s.store.Reset(); err != nil {
			s.log.OnErrorEvent("Store reset failed: " + err.Error())
		}
	}
}

// Reset logs out if logged on, disconnects and resets the store.
func (s *Session) Reset(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset(reason)
}

func (s *Session) reset(reason string) error {
	if s.isLoggedOn() && !s.logoutSent {
		s.generateLogout(reason)
	}
	s.disconnect("Resetting")
	if err := s.store.Reset(); err != nil {
		s.log.OnErrorEvent("Store reset failed: " + err.Error())
		return err
	}
	s.log.OnEvent("Session reset: " + reason)
	return nil
}

// Refresh reloads the store from its backing medium.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Refresh()
}

// Dispose disconnects, unregisters the session and closes its store.
// It is idempotent.
func (s *Session) Dispose() error {
	if s.disposed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responder != nil {
		s.disconnect("Disposed")
	}
	if s.table != nil {
		s.table.removeIf(s.id, s)
	}
	return s.store.Close()
}

// Disposed reports whether Dispose was called.
func (s *Session) Disposed() bool { return s.disposed.Load() }

// Send sends an application or admin message. The header identity,
// MsgSeqNum and SendingTime are filled in. While not logged on,
// application messages are stored and sequenced but not transmitted; the
// counterparty recovers them with a resend request.
func (s *Session) Send(msg *message.Message) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendRaw(msg, 0)
}

// sendRaw fills the header and transmits. A non-zero resendSeq sends a
// previously sequenced message again: it is neither stored nor counted and
// ToApp has already run.
func (s *Session) sendRaw(msg *message.Message, resendSeq int) error {
	s.initializeHeader(msg, resendSeq)

	admin := msg.IsAdmin()
	if admin {
		s.app.ToAdmin(msg, s.id)
	} else if resendSeq == 0 {
		if err := s.app.ToApp(msg, s.id); err != nil {
			return err
		}
	}

	raw := msg.String()
	if resendSeq == 0 {
		if s.settings.PersistMessages {
			if err := s.store.Set(msg.SeqNum(), raw); err != nil {
				s.storeFailure(err)
				return err
			}
		}
		if err := s.store.IncrNextSenderMsgSeqNum(); err != nil {
			s.storeFailure(err)
			return err
		}
	}

	if !admin && !s.isLoggedOn() {
		return nil
	}
	return s.transmit(raw)
}

func (s *Session) initializeHeader(msg *message.Message, resendSeq int) {
	sessionid.Apply(s.id, &msg.Header)
	seq := resendSeq
	if seq == 0 {
		seq = s.store.NextSenderMsgSeqNum()
	}
	msg.Header.SetInt(message.TagMsgSeqNum, seq)
	msg.Header.SetField(message.TagSendingTime, s.now().UTC().Format(sendingTimeLayout))
}

func (s *Session) transmit(raw string) error {
	if s.responder == nil {
		return ErrNotConnected
	}
	s.log.OnOutgoing(raw)
	if !s.responder.Send(raw) {
		s.log.OnErrorEvent("Failed to send message")
		return ErrNotConnected
	}
	s.lastSent = s.now()
	return nil
}

// storeFailure escalates a persistence fault to a disconnection.
func (s *Session) storeFailure(err error) {
	s.log.OnErrorEvent("Store failure: " + err.Error())
	if s.responder != nil {
		s.disconnect("Store failure")
	}
}

// Next runs the session timers: logon and logout timeouts, heartbeats,
// test requests, and the end of the trading window. Transports call it
// about once per second.
func (s *Session) Next() {
	if s.disposed.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responder == nil {
		return
	}

	now := s.now()
	if !s.schedule.IsSessionTime(now) {
		s.reset("Out of SessionTime (Session.Next())")
		return
	}

	if !s.IsEnabled() && s.isLoggedOn() && !s.logoutSent {
		s.log.OnEvent("Initiated logout request")
		s.generateLogout("")
	}

	if !s.logonReceived {
		if !s.logonSent {
			if s.IsEnabled() {
				s.initiateLogon()
			}
			return
		}
		if now.Sub(s.logonSentAt) >= s.settings.LogonTimeout {
			s.log.OnEvent("Timed out waiting for logon response")
			s.disconnect("Timed out waiting for logon response")
		}
		return
	}

	if s.logoutSent {
		if now.Sub(s.logoutSentAt) >= s.settings.LogoutTimeout {
			s.log.OnEvent("Timed out waiting for logout response")
			s.disconnect("Timed out waiting for logout response")
		}
		return
	}

	hb := s.heartBtInt
	if hb <= 0 {
		return
	}
	sinceReceived := now.Sub(s.lastReceived)
	switch {
	case sinceReceived >= hb*24/10:
		s.log.OnEvent("Timed out waiting for heartbeat")
		s.disconnect("Timed out waiting for heartbeat")
	case sinceReceived >= hb*time.Duration(12*(s.testRequests+1))/10:
		s.generateTestRequest("TEST")
		s.testRequests++
		s.log.OnEvent("Sent test request TEST")
	case now.Sub(s.lastSent) >= hb && s.testRequests == 0:
		s.generateHeartbeat("")
	}
}
