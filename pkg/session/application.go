package session

import (
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
)

// Application receives session callbacks. Callbacks run on the goroutine
// that drives the session and must not block for long.
type Application interface {
	// OnCreate is called once when the session is built.
	OnCreate(id sessionid.ID)

	// OnLogon is called when the logon handshake completes.
	OnLogon(id sessionid.ID)

	// OnLogout is called when a session that sent or received a Logon
	// disconnects, whatever the cause.
	OnLogout(id sessionid.ID)

	// ToAdmin may amend an outbound admin message, e.g. add credentials to
	// a Logon.
	ToAdmin(msg *message.Message, id sessionid.ID)

	// FromAdmin sees every inbound admin message after session checks.
	FromAdmin(msg *message.Message, id sessionid.ID) error

	// ToApp may amend an outbound application message. Returning
	// ErrDoNotSend drops it; during a resend the slot is gap filled.
	ToApp(msg *message.Message, id sessionid.ID) error

	// FromApp receives inbound application messages in sequence order.
	FromApp(msg *message.Message, id sessionid.ID) error
}

// NullApplication ignores every callback.
type NullApplication struct{}

func (NullApplication) OnCreate(sessionid.ID)                          {}
func (NullApplication) OnLogon(sessionid.ID)                           {}
func (NullApplication) OnLogout(sessionid.ID)                          {}
func (NullApplication) ToAdmin(*message.Message, sessionid.ID)         {}
func (NullApplication) FromAdmin(*message.Message, sessionid.ID) error { return nil }
func (NullApplication) ToApp(*message.Message, sessionid.ID) error     { return nil }
func (NullApplication) FromApp(*message.Message, sessionid.ID) error   { return nil }
