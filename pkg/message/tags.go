package message

import "strconv"

// Tag is a FIX field number.
type Tag int

// String returns the decimal form of the tag.
func (t Tag) String() string {
	return strconv.Itoa(int(t))
}

// Standard header tags.
const (
	TagBeginString            Tag = 8
	TagBodyLength             Tag = 9
	TagMsgType                Tag = 35
	TagSenderCompID           Tag = 49
	TagTargetCompID           Tag = 56
	TagOnBehalfOfCompID       Tag = 115
	TagDeliverToCompID        Tag = 128
	TagSecureDataLen          Tag = 90
	TagSecureData             Tag = 91
	TagMsgSeqNum              Tag = 34
	TagSenderSubID            Tag = 50
	TagSenderLocationID       Tag = 142
	TagTargetSubID            Tag = 57
	TagTargetLocationID       Tag = 143
	TagOnBehalfOfSubID        Tag = 116
	TagOnBehalfOfLocationID   Tag = 144
	TagDeliverToSubID         Tag = 129
	TagDeliverToLocationID    Tag = 145
	TagPossDupFlag            Tag = 43
	TagPossResend             Tag = 97
	TagSendingTime            Tag = 52
	TagOrigSendingTime        Tag = 122
	TagXMLDataLen             Tag = 212
	TagXMLData                Tag = 213
	TagMessageEncoding        Tag = 347
	TagLastMsgSeqNumProcessed Tag = 369
	TagApplVerID              Tag = 1128
)

// Standard trailer tags.
const (
	TagSignatureLength Tag = 93
	TagSignature       Tag = 89
	TagCheckSum        Tag = 10
)

// Session-level body tags.
const (
	TagBeginSeqNo          Tag = 7
	TagEndSeqNo            Tag = 16
	TagNewSeqNo            Tag = 36
	TagRefSeqNum           Tag = 45
	TagText                Tag = 58
	TagEncryptMethod       Tag = 98
	TagHeartBtInt          Tag = 108
	TagTestReqID           Tag = 112
	TagGapFillFlag         Tag = 123
	TagResetSeqNumFlag     Tag = 141
	TagRefTagID            Tag = 371
	TagRefMsgType          Tag = 372
	TagSessionRejectReason Tag = 373
	TagDefaultApplVerID    Tag = 1137
)

var headerTags = map[Tag]struct{}{
	TagBeginString:            {},
	TagBodyLength:             {},
	TagMsgType:                {},
	TagSenderCompID:           {},
	TagTargetCompID:           {},
	TagOnBehalfOfCompID:       {},
	TagDeliverToCompID:        {},
	TagSecureDataLen:          {},
	TagMsgSeqNum:              {},
	TagSenderSubID:            {},
	TagSenderLocationID:       {},
	TagTargetSubID:            {},
	TagTargetLocationID:       {},
	TagOnBehalfOfSubID:        {},
	TagOnBehalfOfLocationID:   {},
	TagDeliverToSubID:         {},
	TagDeliverToLocationID:    {},
	TagPossDupFlag:            {},
	TagPossResend:             {},
	TagSendingTime:            {},
	TagOrigSendingTime:        {},
	TagXMLDataLen:             {},
	TagXMLData:                {},
	TagMessageEncoding:        {},
	TagLastMsgSeqNumProcessed: {},
}

// IsHeaderField reports whether tag belongs to the standard header, either
// from the built-in set or because dict declares it as a header field.
// dict may be nil.
func IsHeaderField(tag Tag, dict Dictionary) bool {
	if _, ok := headerTags[tag]; ok {
		return true
	}
	return dict != nil && dict.IsHeaderField(tag)
}

// IsTrailerField reports whether tag belongs to the standard trailer.
// dict may be nil.
func IsTrailerField(tag Tag, dict Dictionary) bool {
	switch tag {
	case TagSignatureLength, TagSignature, TagCheckSum:
		return true
	}
	return dict != nil && dict.IsTrailerField(tag)
}
