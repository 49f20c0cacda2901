package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/backkem/fix/pkg/message"
)

// resendInfinity is the EndSeqNo meaning "through the last message" before
// FIX.4.2, which uses 0 instead.
const resendInfinity = 999999

// NextMessage processes one raw inbound message. Malformed input is logged
// and, where the protocol calls for it, rejected; it never panics or
// returns an error to the transport.
func (s *Session) NextMessage(raw string) {
	if s.disposed.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.OnIncoming(raw)
	msg, err := message.Parse(raw, message.ParseOptions{
		Validate:          s.settings.ValidateIncoming,
		SessionDictionary: s.dict,
		AppDictionary:     s.dict,
	})
	if err != nil {
		s.handleParseError(raw, err)
		return
	}
	s.process(msg)
	s.nextQueued()
}

func (s *Session) handleParseError(raw string, err error) {
	var (
		missing  *message.MissingGroupDelimiterError
		repeated *message.RepeatedTagWithoutGroupDelimiterError
	)
	switch {
	case errors.As(err, &missing):
		s.rejectHeaderOnly(raw, RejectRepeatingGroupFieldsOutOfOrder, missing.GroupTag, err.Error())
	case errors.As(err, &repeated):
		s.rejectHeaderOnly(raw, RejectRepeatingGroupFieldsOutOfOrder, repeated.GroupTag, err.Error())
	case errors.Is(err, message.ErrInvalidMessage):
		s.log.OnErrorEvent("Invalid message: " + err.Error())
		if msgType, _ := message.GetMsgType(raw); msgType == message.MsgTypeLogon && !s.logonReceived {
			s.disconnect("Logon message is not valid")
		}
	default:
		s.log.OnErrorEvent("Unparseable message: " + err.Error())
	}
}

// rejectHeaderOnly rejects a message whose body could not be parsed,
// using only its header for routing and sequencing.
func (s *Session) rejectHeaderOnly(raw string, reason RejectReason, refTag message.Tag, text string) {
	msg := message.New()
	if err := msg.FromStringHeader(raw); err != nil || !s.isLoggedOn() {
		s.log.OnErrorEvent("Dropped malformed message: " + text)
		return
	}
	s.rejectAndAdvance(msg, reason, refTag, text)
}

func (s *Session) process(msg *message.Message) {
	msgType := msg.MsgType()

	if begin, _ := msg.Header.Get(message.TagBeginString); begin != s.id.BeginString {
		text := "Incorrect BeginString: " + begin
		s.log.OnErrorEvent(text)
		s.generateLogout(text)
		s.disconnect(text)
		return
	}
	if msgType != message.MsgTypeLogon && !s.isLoggedOn() {
		s.log.OnErrorEvent(fmt.Sprintf("Received %s before logon", message.MsgTypeName(msgType)))
		s.disconnect("Received message before logon")
		return
	}
	if !s.checkCompIDs(msg) {
		s.generateReject(msg, RejectCompIDProblem, 0, "")
		s.generateLogout(RejectCompIDProblem.String())
		s.disconnect(RejectCompIDProblem.String())
		return
	}
	if ok, tag := msg.HasValidStructure(); !ok {
		s.rejectAndAdvance(msg, RejectTagSpecifiedOutOfRequiredOrder, tag, "")
		return
	}

	switch msgType {
	case message.MsgTypeLogon:
		s.nextLogon(msg)
	case message.MsgTypeHeartbeat:
		s.nextHeartbeat(msg)
	case message.MsgTypeTestRequest:
		s.nextTestRequest(msg)
	case message.MsgTypeResendRequest:
		s.nextResendRequest(msg)
	case message.MsgTypeSequenceReset:
		s.nextSequenceReset(msg)
	case message.MsgTypeLogout:
		s.nextLogout(msg)
	case message.MsgTypeReject:
		s.nextReject(msg)
	default:
		s.nextApp(msg)
	}
}

func (s *Session) checkCompIDs(msg *message.Message) bool {
	sender, _ := msg.Header.Get(message.TagSenderCompID)
	target, _ := msg.Header.Get(message.TagTargetCompID)
	return sender == s.id.TargetCompID && target == s.id.SenderCompID
}

// verify updates receive bookkeeping and checks the sequence number.
// It returns false when the message must not be processed further.
func (s *Session) verify(msg *message.Message, checkTooHigh, checkTooLow bool) bool {
	s.lastReceived = s.now()
	s.testRequests = 0

	seq := msg.SeqNum()
	expected := s.store.NextTargetMsgSeqNum()
	if checkTooHigh && seq > expected {
		s.doTargetTooHigh(msg, true)
		return false
	}
	if checkTooLow && seq < expected {
		s.doTargetTooLow(msg)
		return false
	}

	if s.resendEnd > 0 && seq >= s.resendEnd {
		s.log.OnEvent(fmt.Sprintf("ResendRequest for messages FROM: %d TO: %d has been satisfied.", s.resendBegin, s.resendEnd))
		s.resendBegin, s.resendEnd = 0, 0
	}
	return true
}

func (s *Session) doTargetTooHigh(msg *message.Message, queue bool) {
	seq := msg.SeqNum()
	expected := s.store.NextTargetMsgSeqNum()
	s.log.OnEvent(fmt.Sprintf("MsgSeqNum too high, expecting %d but received %d", expected, seq))
	if queue {
		s.queue[seq] = msg
	}
	if s.resendEnd > 0 {
		s.log.OnEvent(fmt.Sprintf("Already sent ResendRequest FROM: %d TO: %d.  Not sending another.", s.resendBegin, s.resendEnd))
		return
	}
	s.generateResendRequest(expected, seq-1)
}

func (s *Session) doTargetTooLow(msg *message.Message) {
	seq := msg.SeqNum()
	expected := s.store.NextTargetMsgSeqNum()
	if possDup, _ := msg.Header.GetBool(message.TagPossDupFlag); possDup {
		s.log.OnEvent(fmt.Sprintf("Ignoring possible duplicate MsgSeqNum %d", seq))
		return
	}
	text := fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seq)
	s.log.OnErrorEvent(text)
	s.generateLogout(text)
	s.disconnect(text)
}

func (s *Session) incrTarget() {
	if err := s.store.IncrNextTargetMsgSeqNum(); err != nil {
		s.storeFailure(err)
	}
}

// incrTargetIfExpected advances the target counter when msg carries it.
func (s *Session) incrTargetIfExpected(msg *message.Message) {
	if msg.SeqNum() == s.store.NextTargetMsgSeqNum() {
		s.incrTarget()
	}
}

func (s *Session) fromAdmin(msg *message.Message) {
	if err := s.app.FromAdmin(msg, s.id); err != nil {
		s.log.OnErrorEvent("FromAdmin: " + err.Error())
	}
}

// nextQueued drains messages that arrived early, in sequence order.
func (s *Session) nextQueued() {
	for s.responder != nil {
		expected := s.store.NextTargetMsgSeqNum()
		msg, ok := s.queue[expected]
		if !ok {
			break
		}
		delete(s.queue, expected)
		s.log.OnEvent(fmt.Sprintf("Processing queued message: %d", expected))

		switch msg.MsgType() {
		case message.MsgTypeLogon, message.MsgTypeResendRequest:
			s.incrTarget()
		default:
			s.process(msg)
		}
	}
	for seq := range s.queue {
		if seq < s.store.NextTargetMsgSeqNum() {
			delete(s.queue, seq)
		}
	}
}

func (s *Session) nextLogon(msg *message.Message) {
	if s.logonReceived {
		s.log.OnErrorEvent("Received unexpected Logon while logged on")
		s.incrTargetIfExpected(msg)
		return
	}

	reset, _ := msg.Body.GetBool(message.TagResetSeqNumFlag)
	if reset && !s.resetSent {
		s.log.OnEvent("Logon contains ResetSeqNumFlag=Y, resetting sequence numbers to 1")
		if err := s.store.Reset(); err != nil {
			s.storeFailure(err)
			return
		}
	}

	seq := msg.SeqNum()
	expected := s.store.NextTargetMsgSeqNum()
	if seq < expected {
		s.doTargetTooLow(msg)
		return
	}

	if !s.logonSent {
		if !s.IsEnabled() {
			s.disconnect("Session is not enabled for logon")
			return
		}
		if hb, err := msg.Body.GetInt(message.TagHeartBtInt); err == nil {
			s.heartBtInt = secondsToDuration(hb)
		}
		s.log.OnEvent("Received logon request")
		s.resetSent = reset
		if err := s.generateLogon(); err != nil {
			return
		}
		s.log.OnEvent("Responding to logon request")
	} else {
		s.log.OnEvent("Received logon response")
	}

	s.logonReceived = true
	s.lastReceived = s.now()
	s.testRequests = 0

	if seq > expected {
		s.doTargetTooHigh(msg, false)
	} else {
		s.incrTarget()
	}
	s.fromAdmin(msg)
	s.app.OnLogon(s.id)
}

func (s *Session) nextHeartbeat(msg *message.Message) {
	if !s.verify(msg, true, true) {
		return
	}
	s.fromAdmin(msg)
	s.incrTarget()
}

func (s *Session) nextTestRequest(msg *message.Message) {
	if !s.verify(msg, true, true) {
		return
	}
	id, _ := msg.Body.Get(message.TagTestReqID)
	s.generateHeartbeat(id)
	s.fromAdmin(msg)
	s.incrTarget()
}

func (s *Session) nextReject(msg *message.Message) {
	if !s.verify(msg, false, true) {
		return
	}
	s.fromAdmin(msg)
	s.incrTargetIfExpected(msg)
}

func (s *Session) nextLogout(msg *message.Message) {
	if !s.verify(msg, false, false) {
		return
	}
	if s.logoutSent {
		s.log.OnEvent("Received logout response")
	} else {
		s.log.OnEvent("Received logout request")
		s.generateLogout("")
		s.log.OnEvent("Sending logout response")
	}
	s.fromAdmin(msg)
	s.incrTargetIfExpected(msg)
	if s.settings.ResetOnLogout {
		if err := s.store.Reset(); err != nil {
			s.log.OnErrorEvent("Store reset failed: " + err.Error())
		}
	}
	s.disconnect("Received logout")
}

func (s *Session) nextSequenceReset(msg *message.Message) {
	gapFill, _ := msg.Body.GetBool(message.TagGapFillFlag)
	if !s.verify(msg, gapFill, gapFill) {
		return
	}
	newSeq, err := msg.Body.GetInt(message.TagNewSeqNo)
	if err != nil {
		s.rejectAndAdvance(msg, RejectRequiredTagMissing, message.TagNewSeqNo, "")
		return
	}
	expected := s.store.NextTargetMsgSeqNum()
	s.log.OnEvent(fmt.Sprintf("Received SequenceReset FROM: %d TO: %d", expected, newSeq))

	switch {
	case newSeq > expected:
		if err := s.store.SetNextTargetMsgSeqNum(newSeq); err != nil {
			s.storeFailure(err)
			return
		}
	case newSeq < expected:
		s.generateReject(msg, RejectValueIsIncorrect, message.TagNewSeqNo, "")
	}
	s.fromAdmin(msg)
}

func (s *Session) nextResendRequest(msg *message.Message) {
	if !s.verify(msg, false, false) {
		return
	}
	begin, err1 := msg.Body.GetInt(message.TagBeginSeqNo)
	end, err2 := msg.Body.GetInt(message.TagEndSeqNo)
	if err1 != nil || err2 != nil {
		tag := message.TagBeginSeqNo
		if err1 == nil {
			tag = message.TagEndSeqNo
		}
		s.rejectAndAdvance(msg, RejectRequiredTagMissing, tag, "")
		return
	}
	s.log.OnEvent(fmt.Sprintf("Received ResendRequest FROM: %d TO: %d", begin, end))

	last := s.store.NextSenderMsgSeqNum() - 1
	if end == 0 || end == resendInfinity || end > last {
		end = last
	}
	if begin >= 1 && begin <= end {
		s.resend(begin, end)
	}
	s.fromAdmin(msg)
	s.incrTargetIfExpected(msg)
}

// resend replays stored messages in [begin, end]. Admin messages, vetoed
// application messages and missing sequence numbers collapse into
// SequenceReset-GapFill messages.
func (s *Session) resend(begin, end int) {
	var raws []string
	if s.settings.PersistMessages {
		var err error
		if raws, err = s.store.Get(begin, end); err != nil {
			s.storeFailure(err)
			return
		}
	}

	gapStart := 0
	next := begin
	for _, raw := range raws {
		m, err := message.Parse(raw, message.ParseOptions{SessionDictionary: s.dict, AppDictionary: s.dict})
		if err != nil {
			s.log.OnErrorEvent("Stored message unparseable: " + err.Error())
			continue
		}
		seq := m.SeqNum()
		if seq < next || seq > end {
			continue
		}
		if gapStart == 0 && seq > next {
			gapStart = next
		}
		next = seq + 1

		if m.IsAdmin() || !s.prepareResend(m) {
			if gapStart == 0 {
				gapStart = seq
			}
			continue
		}
		if gapStart != 0 {
			s.generateSequenceReset(gapStart, seq)
			gapStart = 0
		}
		s.log.OnEvent(fmt.Sprintf("Resending message: %d", seq))
		if err := s.sendRaw(m, seq); err != nil {
			return
		}
	}
	if gapStart == 0 && next <= end {
		gapStart = next
	}
	if gapStart != 0 {
		s.generateSequenceReset(gapStart, end+1)
	}
}

// prepareResend marks m as a possible duplicate. It returns false when
// the application vetoes the resend.
func (s *Session) prepareResend(m *message.Message) bool {
	if orig, ok := m.Header.Get(message.TagSendingTime); ok {
		m.Header.SetField(message.TagOrigSendingTime, orig)
	}
	m.Header.SetField(message.TagPossDupFlag, "Y")
	return s.app.ToApp(m, s.id) == nil
}

func (s *Session) nextApp(msg *message.Message) {
	if !s.verify(msg, true, true) {
		return
	}
	if err := s.app.FromApp(msg, s.id); err != nil {
		s.generateReject(msg, RejectOther, 0, err.Error())
	}
	s.incrTarget()
}

// rejectAndAdvance rejects msg and consumes its sequence number.
func (s *Session) rejectAndAdvance(msg *message.Message, reason RejectReason, refTag message.Tag, text string) {
	s.generateReject(msg, reason, refTag, text)
	s.incrTargetIfExpected(msg)
}

func (s *Session) newMessage(msgType string) *message.Message {
	return message.NewWithType(s.id.BeginString, msgType)
}

func (s *Session) generateLogon() error {
	m := s.newMessage(message.MsgTypeLogon)
	m.Body.SetInt(message.TagEncryptMethod, 0)
	m.Body.SetInt(message.TagHeartBtInt, int(s.heartBtInt/time.Second))
	if s.id.IsFIXT() && s.settings.DefaultApplVerID != "" {
		m.Body.SetField(message.TagDefaultApplVerID, s.settings.DefaultApplVerID)
	}
	if s.resetSent {
		m.Body.SetField(message.TagResetSeqNumFlag, "Y")
	}
	s.logonSent = true
	s.logonSentAt = s.now()
	return s.sendRaw(m, 0)
}

func (s *Session) generateLogout(text string) {
	m := s.newMessage(message.MsgTypeLogout)
	if text != "" {
		m.Body.SetField(message.TagText, text)
	}
	s.logoutSent = true
	s.logoutSentAt = s.now()
	s.sendRaw(m, 0)
}

func (s *Session) generateHeartbeat(testReqID string) {
	m := s.newMessage(message.MsgTypeHeartbeat)
	if testReqID != "" {
		m.Body.SetField(message.TagTestReqID, testReqID)
	}
	s.sendRaw(m, 0)
}

func (s *Session) generateTestRequest(id string) {
	m := s.newMessage(message.MsgTypeTestRequest)
	m.Body.SetField(message.TagTestReqID, id)
	s.sendRaw(m, 0)
}

func (s *Session) generateResendRequest(begin, end int) {
	m := s.newMessage(message.MsgTypeResendRequest)
	m.Body.SetInt(message.TagBeginSeqNo, begin)
	if s.id.BeginString >= message.BeginStringFIX42 {
		m.Body.SetInt(message.TagEndSeqNo, 0)
	} else {
		m.Body.SetInt(message.TagEndSeqNo, resendInfinity)
	}
	if err := s.sendRaw(m, 0); err != nil {
		return
	}
	s.resendBegin, s.resendEnd = begin, end
	s.log.OnEvent(fmt.Sprintf("Sent ResendRequest FROM: %d TO: %d", begin, end))
}

// generateSequenceReset sends a gap fill occupying seq begin and moving
// the counterparty to newSeq.
func (s *Session) generateSequenceReset(begin, newSeq int) {
	m := s.newMessage(message.MsgTypeSequenceReset)
	m.Header.SetField(message.TagPossDupFlag, "Y")
	m.Header.SetField(message.TagOrigSendingTime, s.now().UTC().Format(sendingTimeLayout))
	m.Body.SetField(message.TagGapFillFlag, "Y")
	m.Body.SetInt(message.TagNewSeqNo, newSeq)
	s.sendRaw(m, begin)
	s.log.OnEvent(fmt.Sprintf("Sent SequenceReset TO: %d", newSeq))
}

func (s *Session) generateReject(msg *message.Message, reason RejectReason, refTag message.Tag, text string) {
	m := s.newMessage(message.MsgTypeReject)
	seq, _ := msg.Header.GetInt(message.TagMsgSeqNum)
	m.Body.SetInt(message.TagRefSeqNum, seq)
	if s.id.BeginString >= message.BeginStringFIX42 {
		if msgType := msg.MsgType(); msgType != "" {
			m.Body.SetField(message.TagRefMsgType, msgType)
		}
		m.Body.SetInt(message.TagSessionRejectReason, int(reason))
	}
	if refTag != 0 {
		m.Body.SetInt(message.TagRefTagID, int(refTag))
	}
	if text == "" {
		text = reason.String()
	}
	m.Body.SetField(message.TagText, text)
	s.log.OnErrorEvent("Message " + strconv.Itoa(seq) + " Rejected: " + text)
	s.sendRaw(m, 0)
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
