package config

// Session identity settings.
const (
	BeginString      = "BeginString"
	SenderCompID     = "SenderCompID"
	SenderSubID      = "SenderSubID"
	SenderLocationID = "SenderLocationID"
	TargetCompID     = "TargetCompID"
	TargetSubID      = "TargetSubID"
	TargetLocationID = "TargetLocationID"
	SessionQualifier = "SessionQualifier"
)

// Lifecycle and transport settings.
const (
	ConnectionType           = "ConnectionType"
	ReconnectInterval        = "ReconnectInterval"
	SocketConnectHost        = "SocketConnectHost"
	SocketConnectPort        = "SocketConnectPort"
	SocketConnectService     = "SocketConnectService"
	SocketConnectTimeout     = "SocketConnectTimeout"
	SocketUseSSL             = "SocketUseSSL"
	SocketServerName         = "SocketServerName"
	SocketInsecureSkipVerify = "SocketInsecureSkipVerify"
	SocketNodelay            = "SocketNodelay"
)

// Session protocol settings.
const (
	HeartBtInt        = "HeartBtInt"
	LogonTimeout      = "LogonTimeout"
	LogoutTimeout     = "LogoutTimeout"
	StartTime         = "StartTime"
	EndTime           = "EndTime"
	TimeZone          = "TimeZone"
	NonStopSession    = "NonStopSession"
	ResetOnLogon      = "ResetOnLogon"
	ResetOnLogout     = "ResetOnLogout"
	ResetOnDisconnect = "ResetOnDisconnect"
	PersistMessages   = "PersistMessages"
	ValidateIncoming  = "ValidateIncoming"
	DataDictionary    = "DataDictionary"
	DefaultApplVerID  = "DefaultApplVerID"
	MaxMessageSize    = "MaxMessageSize"
)

// Store settings.
const (
	FileStorePath   = "FileStorePath"
	BadgerStorePath = "BadgerStorePath"
)

// Log settings.
const (
	LogIncoming = "LogIncoming"
	LogOutgoing = "LogOutgoing"
	LogEvents   = "LogEvents"
)

// ConnectionType values.
const (
	ConnectionTypeInitiator = "initiator"
	ConnectionTypeAcceptor  = "acceptor"
)

// Defaults.
const (
	// DefaultReconnectInterval is the reconnect sweep period in seconds.
	DefaultReconnectInterval = 30

	// DefaultHeartBtInt is the heartbeat interval in seconds.
	DefaultHeartBtInt = 30

	// DefaultLogonTimeout is the logon response timeout in seconds.
	DefaultLogonTimeout = 10

	// DefaultLogoutTimeout is the logout response timeout in seconds.
	DefaultLogoutTimeout = 2

	// DefaultSocketConnectTimeout is the dial timeout in seconds.
	DefaultSocketConnectTimeout = 10
)
