package initiator

import (
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/session"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Shutdown bounds.
const (
	// DefaultLogoutPollInterval is how often Stop checks for logged-on
	// sessions while waiting for a graceful logout.
	DefaultLogoutPollInterval = 500 * time.Millisecond

	// DefaultLogoutPolls is how many times Stop checks before giving up.
	DefaultLogoutPolls = 20

	// DefaultLoopJoinTimeout bounds the wait for the control loop to exit.
	DefaultLoopJoinTimeout = 5 * time.Second

	// DefaultTickInterval is the control loop's wake-up period.
	DefaultTickInterval = time.Second
)

// Config holds the configuration of an Initiator.
type Config struct {
	// Settings declares the sessions and their transport parameters.
	// Required. AddSession and RemoveSession modify it.
	Settings *config.SessionSettings

	// Connector opens the transport connections. Required.
	Connector Connector

	// SessionFactory builds sessions from settings.
	// Default: session.NewFactory with an empty FactoryConfig
	SessionFactory *session.Factory

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Registerer receives the initiator metrics. If nil, metrics are
	// disabled.
	Registerer prometheus.Registerer

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// Shutdown and loop timing - Optional (uses defaults if zero)
	LogoutPollInterval time.Duration
	LogoutPolls        int
	LoopJoinTimeout    time.Duration
	TickInterval       time.Duration
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Settings == nil {
		return ErrNoSettings
	}
	if c.Connector == nil {
		return ErrNoConnector
	}
	if c.Settings.Len() == 0 {
		return config.NewError("initiator", config.ErrNoSessions)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.SessionFactory == nil {
		c.SessionFactory = session.NewFactory(session.FactoryConfig{})
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.LogoutPollInterval == 0 {
		c.LogoutPollInterval = DefaultLogoutPollInterval
	}
	if c.LogoutPolls == 0 {
		c.LogoutPolls = DefaultLogoutPolls
	}
	if c.LoopJoinTimeout == 0 {
		c.LoopJoinTimeout = DefaultLoopJoinTimeout
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
}
