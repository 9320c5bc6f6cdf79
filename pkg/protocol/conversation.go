package protocol

import "strings"

// Session types carried in MsgData.SessionType.
const (
	SessionSingleChat   int32 = 1
	SessionWriteGroup   int32 = 2
	SessionReadGroup    int32 = 3
	SessionNotification int32 = 4
)

// ConversationID derives the conversation a message belongs to. Single
// chats sort the two user IDs so both sides agree.
func ConversationID(sessionType int32, sendID, recvID, groupID string) string {
	switch sessionType {
	case SessionWriteGroup:
		return "g_" + groupID
	case SessionReadGroup:
		return "sg_" + groupID
	case SessionNotification:
		return "n_" + joinSorted(sendID, recvID)
	default:
		return "si_" + joinSorted(sendID, recvID)
	}
}

func joinSorted(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "_" + b
}
