package main

import (
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/pion/logging"
)

// application logs session lifecycle and application traffic.
type application struct {
	session.NullApplication
	log logging.LeveledLogger
}

func (a *application) OnLogon(id sessionid.ID) {
	a.log.Infof("%s logged on", id)
}

func (a *application) OnLogout(id sessionid.ID) {
	a.log.Infof("%s logged out", id)
}

func (a *application) FromApp(msg *message.Message, id sessionid.ID) error {
	a.log.Debugf("%s received %s", id, message.MsgTypeName(msg.MsgType()))
	return nil
}
