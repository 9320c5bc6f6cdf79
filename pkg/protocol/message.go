// Package protocol implements the gateway wire format: the JSON envelope
// shared by requests and responses, gzip detection, and the handshake frame.
package protocol

import "strconv"

// ReqIdentifier is the message-type ID carried in every envelope.
type ReqIdentifier int32

const (
	WSGetNewestSeq        ReqIdentifier = 1001
	WSPullMsgBySeqList    ReqIdentifier = 1002
	WSSendMsg             ReqIdentifier = 1003
	WSSendSignalMsg       ReqIdentifier = 1004
	WSPullMsg             ReqIdentifier = 1005
	WSGetConvMaxReadSeq   ReqIdentifier = 1006
	WSPullConvLastMessage ReqIdentifier = 1007
	WSPushMsg             ReqIdentifier = 2001
	WSKickOnlineMsg       ReqIdentifier = 2002
	WSLogoutMsg           ReqIdentifier = 2003
	WSSetBackgroundStatus ReqIdentifier = 2004
)

// pushThreshold separates server-initiated IDs from client requests.
const pushThreshold = 2000

// String returns the string representation of ReqIdentifier
func (r ReqIdentifier) String() string {
	switch r {
	case WSGetNewestSeq:
		return "GET_NEWEST_SEQ"
	case WSPullMsgBySeqList:
		return "PULL_MSG_BY_SEQ_LIST"
	case WSSendMsg:
		return "SEND_MSG"
	case WSSendSignalMsg:
		return "SEND_SIGNAL_MSG"
	case WSPullMsg:
		return "PULL_MSG"
	case WSGetConvMaxReadSeq:
		return "GET_CONV_MAX_READ_SEQ"
	case WSPullConvLastMessage:
		return "PULL_CONV_LAST_MESSAGE"
	case WSPushMsg:
		return "PUSH_MSG"
	case WSKickOnlineMsg:
		return "KICK_ONLINE_MSG"
	case WSLogoutMsg:
		return "LOGOUT_MSG"
	case WSSetBackgroundStatus:
		return "SET_BACKGROUND_STATUS"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(r)) + ")"
	}
}

// Known reports whether r belongs to the closed set of identifiers.
func (r ReqIdentifier) Known() bool {
	switch r {
	case WSGetNewestSeq, WSPullMsgBySeqList, WSSendMsg, WSSendSignalMsg,
		WSPullMsg, WSGetConvMaxReadSeq, WSPullConvLastMessage,
		WSPushMsg, WSKickOnlineMsg, WSLogoutMsg, WSSetBackgroundStatus:
		return true
	}
	return false
}

// IsPush reports whether r is a server-initiated type.
func (r ReqIdentifier) IsPush() bool {
	return r >= pushThreshold
}

// IsRequest reports whether the client may send r and expect a correlated
// response. SET_BACKGROUND_STATUS travels both ways.
func (r ReqIdentifier) IsRequest() bool {
	return r.Known() && (r < pushThreshold || r == WSSetBackgroundStatus)
}

// ContentType is the MsgData content type code.
type ContentType int32

const (
	ContentText     ContentType = 101
	ContentPicture  ContentType = 102
	ContentVoice    ContentType = 103
	ContentVideo    ContentType = 104
	ContentFile     ContentType = 105
	ContentAtText   ContentType = 106
	ContentMerger   ContentType = 107
	ContentCard     ContentType = 108
	ContentLocation ContentType = 109
	ContentCustom   ContentType = 110
	ContentRevoke   ContentType = 111
	ContentQuote    ContentType = 113
)

// String returns the string representation of ContentType
func (c ContentType) String() string {
	switch c {
	case ContentText:
		return "text"
	case ContentPicture:
		return "image"
	case ContentVoice:
		return "voice"
	case ContentVideo:
		return "video"
	case ContentFile:
		return "file"
	case ContentAtText:
		return "at"
	case ContentMerger:
		return "merge"
	case ContentCard:
		return "card"
	case ContentLocation:
		return "location"
	case ContentCustom:
		return "custom"
	case ContentRevoke:
		return "revoke"
	case ContentQuote:
		return "quote"
	default:
		return "unknown"
	}
}
