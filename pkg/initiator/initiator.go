// Package initiator manages the connection lifecycle of initiator-role FIX
// sessions: it decides when each session is due for a connection attempt,
// hands the attempt to a transport Connector, and tracks the resulting
// connection state.
//
// A single structural lock guards the session table and every connection
// state transition. Per-message traffic never takes it; it flows through
// the sessions themselves.
//
//	init, err := initiator.New(initiator.Config{
//		Settings:  settings,
//		Connector: transport.NewSocketConnector(transport.SocketConfig{}),
//	})
//	if err != nil {
//		return err
//	}
//	if err := init.Start(); err != nil {
//		return err
//	}
//	defer init.Stop(false)
package initiator

import (
	"strings"
	"sync"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/pion/logging"
)

// Initiator owns the sessions of an initiating role.
type Initiator struct {
	config   Config
	settings *config.SessionSettings
	log      logging.LeveledLogger
	metrics  *Metrics

	// mu is the structural lock: session table and state transitions.
	mu       sync.Mutex
	sessions map[sessionid.ID]*session.Session

	// lifeMu serializes Start, Stop and Close. disposed is written holding
	// both locks and may be read holding either.
	lifeMu   sync.Mutex
	running  bool
	disposed bool
	stopCh   chan struct{}
	loopDone chan struct{}
}

// New creates an initiator. It fails with a config.Error when the settings
// declare no sessions.
func New(cfg Config) (*Initiator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	metrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	i := &Initiator{
		config:   cfg,
		settings: cfg.Settings,
		metrics:  metrics,
		sessions: make(map[sessionid.ID]*session.Session),
	}
	if cfg.LoggerFactory != nil {
		i.log = cfg.LoggerFactory.NewLogger("initiator")
	}
	return i, nil
}

// isInitiator reports whether d declares an initiator session. A missing
// ConnectionType counts as initiator.
func isInitiator(d *config.Dictionary) bool {
	ct := d.StringDefault(config.ConnectionType, config.ConnectionTypeInitiator)
	return strings.EqualFold(ct, config.ConnectionTypeInitiator)
}

// Start creates every configured initiator session, configures the
// connector and launches the control loop.
func (i *Initiator) Start() error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if i.disposed {
		return ErrDisposed
	}
	if i.running {
		return ErrAlreadyStarted
	}

	if err := i.createSessions(); err != nil {
		i.disposeSessions()
		return err
	}
	if err := i.config.Connector.Configure(i.settings, i); err != nil {
		i.disposeSessions()
		return err
	}

	i.running = true
	i.stopCh = make(chan struct{})
	i.loopDone = make(chan struct{})
	go i.loop(i.stopCh, i.loopDone)

	if i.log != nil {
		i.log.Infof("initiator started with %d sessions", i.sessionCount())
	}
	return nil
}

func (i *Initiator) createSessions() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, id := range i.settings.SessionIDs() {
		if _, ok := i.sessions[id]; ok {
			continue
		}
		d, err := i.settings.Get(id)
		if err != nil || !isInitiator(d) {
			continue
		}
		s, err := i.config.SessionFactory.Create(id, d)
		if err != nil {
			return err
		}
		i.sessions[id] = s
		i.setState(s, session.StateDisconnected)
	}
	if len(i.sessions) == 0 {
		return config.NewError("initiator", config.ErrNoSessions)
	}
	return nil
}

// setState records a transition. The caller holds mu.
func (i *Initiator) setState(s *session.Session, state session.ConnectionState) {
	i.metrics.transition(s.ConnectionState(), state)
	s.SetConnectionState(state)
}

func (i *Initiator) sessionCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.sessions)
}

// loop runs the connect sweep every ReconnectInterval until stop closes.
func (i *Initiator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := i.reconnectInterval()
	ticker := time.NewTicker(i.config.TickInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		if now := i.config.Clock(); last.IsZero() || now.Sub(last) >= interval {
			i.connect()
			last = now
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (i *Initiator) reconnectInterval() time.Duration {
	d, err := i.settings.Defaults().Seconds(config.ReconnectInterval, config.DefaultReconnectInterval*time.Second)
	if err != nil || d <= 0 {
		if err != nil && i.log != nil {
			i.log.Warnf("using default reconnect interval: %v", err)
		}
		return config.DefaultReconnectInterval * time.Second
	}
	return d
}

// connect dispatches a connection attempt for every disconnected, enabled
// session inside its trading window.
func (i *Initiator) connect() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for id, s := range i.sessions {
		if s.ConnectionState() != session.StateDisconnected || !s.IsEnabled() {
			continue
		}
		if s.IsNewSession() {
			if err := s.Reset("New session"); err != nil && i.log != nil {
				i.log.Warnf("reset of %s failed: %v", id, err)
			}
		}
		if !s.IsSessionTime() {
			continue
		}
		d, err := i.settings.Get(id)
		if err != nil {
			continue
		}

		s.SetLastConnectAttempt(i.config.Clock())
		i.metrics.connectAttempt(id)
		i.setState(s, session.StatePending)
		if err := i.config.Connector.Connect(s, d); err != nil {
			s.Log().OnErrorEvent("Connect failed: " + err.Error())
			if i.log != nil {
				i.log.Warnf("connect %s: %v", id, err)
			}
			i.setState(s, session.StateDisconnected)
		}
	}
}

// SetPending implements StateNotifier.
func (i *Initiator) SetPending(id sessionid.ID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if s, ok := i.sessions[id]; ok && !s.Disposed() {
		i.setState(s, session.StatePending)
	}
}

// SetConnected implements StateNotifier.
func (i *Initiator) SetConnected(id sessionid.ID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if s, ok := i.sessions[id]; ok && !s.Disposed() {
		i.setState(s, session.StateConnected)
	}
}

// SetDisconnected implements StateNotifier. A session that was removed or
// disposed meanwhile is set to StateNone rather than brought back.
func (i *Initiator) SetDisconnected(id sessionid.ID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.sessions[id]
	if !ok {
		return
	}
	if s.Disposed() {
		i.setState(s, session.StateNone)
		return
	}
	switch s.ConnectionState() {
	case session.StateConnected, session.StatePending:
		i.metrics.disconnect(id)
	}
	i.setState(s, session.StateDisconnected)
}

// AddSession registers a session at runtime. The defaults are merged into
// d. It returns false without error when id is already known or d does not
// declare an initiator session.
func (i *Initiator) AddSession(id sessionid.ID, d *config.Dictionary) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.disposed {
		return false, ErrDisposed
	}
	if _, ok := i.sessions[id]; ok || i.settings.Has(id) {
		return false, nil
	}
	merged := d.Clone()
	merged.Merge(i.settings.Defaults())
	if !isInitiator(merged) {
		return false, nil
	}

	if err := i.settings.Set(id, merged); err != nil {
		return false, err
	}
	stored, err := i.settings.Get(id)
	if err != nil {
		i.settings.Remove(id)
		return false, err
	}
	s, err := i.config.SessionFactory.Create(id, stored)
	if err != nil {
		i.settings.Remove(id)
		return false, err
	}
	i.sessions[id] = s
	i.setState(s, session.StateDisconnected)

	if i.log != nil {
		i.log.Infof("added session %s", id)
	}
	return true, nil
}

// RemoveSession unregisters a session. A logged-on session is only removed
// when terminate is set; otherwise RemoveSession returns false and leaves
// it untouched. The session is disposed after its read loop has exited.
// Removing an unknown session returns true.
func (i *Initiator) RemoveSession(id sessionid.ID, terminate bool) bool {
	i.mu.Lock()
	s, ok := i.sessions[id]
	if !ok {
		i.settings.Remove(id)
		i.mu.Unlock()
		return true
	}
	if s.IsLoggedOn() && !terminate {
		i.mu.Unlock()
		return false
	}

	switch s.ConnectionState() {
	case session.StateConnected, session.StatePending:
		s.Disconnect("Dynamic session removal")
	}
	i.setState(s, session.StateNone)
	delete(i.sessions, id)
	i.settings.Remove(id)
	i.mu.Unlock()

	// The read loop reports SetDisconnected on exit, which needs mu.
	i.config.Connector.Remove(id)
	if err := s.Dispose(); err != nil && i.log != nil {
		i.log.Warnf("dispose %s: %v", id, err)
	}

	if i.log != nil {
		i.log.Infof("removed session %s", id)
	}
	return true
}

// Stop shuts the initiator down. Unless force is set it first waits, for a
// bounded time, for logged-on sessions to log out. Stopping a stopped
// initiator is a no-op.
func (i *Initiator) Stop(force bool) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if i.disposed {
		return ErrDisposed
	}
	if !i.running {
		return nil
	}
	i.stop(force)
	return nil
}

func (i *Initiator) stop(force bool) {
	if i.log != nil {
		i.log.Infof("stopping initiator (force=%t)", force)
	}

	i.mu.Lock()
	for _, s := range i.sessions {
		switch s.ConnectionState() {
		case session.StateConnected, session.StatePending:
			s.Disable()
		}
	}
	i.mu.Unlock()

	if !force {
		for n := 0; n < i.config.LogoutPolls && i.IsLoggedOn(); n++ {
			time.Sleep(i.config.LogoutPollInterval)
		}
	}

	i.config.Connector.Stop()

	close(i.stopCh)
	select {
	case <-i.loopDone:
	case <-time.After(i.config.LoopJoinTimeout):
		if i.log != nil {
			i.log.Warn("control loop did not exit in time")
		}
	}

	i.disposeSessions()
	i.running = false

	if i.log != nil {
		i.log.Info("initiator stopped")
	}
}

// disposeSessions clears the table and disposes every session.
func (i *Initiator) disposeSessions() {
	i.mu.Lock()
	sessions := make([]*session.Session, 0, len(i.sessions))
	for id, s := range i.sessions {
		i.setState(s, session.StateNone)
		sessions = append(sessions, s)
		delete(i.sessions, id)
	}
	i.mu.Unlock()

	for _, s := range sessions {
		if err := s.Dispose(); err != nil && i.log != nil {
			i.log.Warnf("dispose %s: %v", s.ID(), err)
		}
	}
}

// Close stops the initiator immediately and releases it, disposing any
// session added while stopped. Start, Stop and AddSession return
// ErrDisposed afterwards.
func (i *Initiator) Close() error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if i.disposed {
		return nil
	}
	if i.running {
		i.stop(true)
	} else {
		i.disposeSessions()
	}

	i.mu.Lock()
	i.disposed = true
	i.mu.Unlock()
	return nil
}

// IsStopped reports whether the control loop is not running.
func (i *Initiator) IsStopped() bool {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()
	return !i.running
}

// IsLoggedOn reports whether at least one session is connected and logged
// on.
func (i *Initiator) IsLoggedOn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range i.sessions {
		if s.ConnectionState() == session.StateConnected && s.IsLoggedOn() {
			return true
		}
	}
	return false
}

// SessionIDs returns the managed sessions in configuration order.
func (i *Initiator) SessionIDs() []sessionid.ID {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]sessionid.ID, 0, len(i.sessions))
	for _, id := range i.settings.SessionIDs() {
		if _, ok := i.sessions[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Session returns the managed session id, or nil.
func (i *Initiator) Session(id sessionid.ID) *session.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessions[id]
}
