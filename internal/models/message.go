package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Message type codes, as stored in messages.msg_type.
const (
	MsgTypeText        int16 = 1
	MsgTypeCode        int16 = 2
	MsgTypeImage       int16 = 3
	MsgTypeAudio       int16 = 4
	MsgTypeVideo       int16 = 5
	MsgTypeFile        int16 = 6
	MsgTypeLocation    int16 = 7
	MsgTypeCard        int16 = 8
	MsgTypeForward     int16 = 9
	MsgTypeLogin       int16 = 10
	MsgTypeVote        int16 = 11
	MsgTypeMixed       int16 = 12
	MsgTypeGroupNotice int16 = 13
)

var msgTypeByName = map[string]int16{
	"text":         MsgTypeText,
	"code":         MsgTypeCode,
	"image":        MsgTypeImage,
	"audio":        MsgTypeAudio,
	"video":        MsgTypeVideo,
	"file":         MsgTypeFile,
	"location":     MsgTypeLocation,
	"card":         MsgTypeCard,
	"forward":      MsgTypeForward,
	"login":        MsgTypeLogin,
	"vote":         MsgTypeVote,
	"mixed":        MsgTypeMixed,
	"group_notice": MsgTypeGroupNotice,
}

// MsgTypeFromName maps the wire-level type name to its stored code.
func MsgTypeFromName(name string) (int16, bool) {
	t, ok := msgTypeByName[name]
	return t, ok
}

var msgTypeNames = func() map[int16]string {
	names := make(map[int16]string, len(msgTypeByName))
	for name, t := range msgTypeByName {
		names[t] = name
	}
	return names
}()

// MsgTypeName maps a stored type code back to its wire-level name.
func MsgTypeName(t int16) (string, bool) {
	name, ok := msgTypeNames[t]
	return name, ok
}

// Message is a stored message row. Sequence is immutable once assigned and
// totally orders messages within a talk.
type Message struct {
	ID          string          `db:"id" json:"id"`
	TalkID      int64           `db:"talk_id" json:"talk_id"`
	Sequence    int64           `db:"sequence" json:"sequence"`
	TalkMode    int16           `db:"talk_mode" json:"talk_mode"`
	MsgType     int16           `db:"msg_type" json:"msg_type"`
	SenderID    int64           `db:"sender_id" json:"sender_id"`
	ReceiverID  int64           `db:"receiver_id" json:"receiver_id"`
	GroupID     int64           `db:"group_id" json:"group_id"`
	ContentText string          `db:"content_text" json:"content_text"`
	Extra       json.RawMessage `db:"extra" json:"extra,omitempty"`
	QuoteMsgID  string          `db:"quote_msg_id" json:"quote_msg_id"`
	IsRevoked   bool            `db:"is_revoked" json:"is_revoked"`
	RevokedBy   int64           `db:"revoked_by" json:"revoked_by"`
	RevokeTime  sql.NullTime    `db:"revoke_time" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// MessageRecord is the outbound record shape shared by the REST responses and
// the im.message push payload. Nickname and avatar are resolved at read time.
type MessageRecord struct {
	MsgID     string          `json:"msg_id"`
	Sequence  int64           `json:"sequence"`
	MsgType   int16           `json:"msg_type"`
	FromID    int64           `json:"from_id"`
	Nickname  string          `json:"nickname"`
	Avatar    string          `json:"avatar"`
	IsRevoked bool            `json:"is_revoked"`
	SendTime  string          `json:"send_time"`
	Extra     json.RawMessage `json:"extra"`
	Quote     json.RawMessage `json:"quote"`
}

// QuoteRef is the compact rendering of a quoted message.
type QuoteRef struct {
	QuoteID string `json:"quote_id"`
	FromID  int64  `json:"from_id"`
	Content string `json:"content"`
}

// MessagePage is one descending page of records plus the next cursor.
type MessagePage struct {
	Items  []MessageRecord `json:"items"`
	Cursor int64           `json:"cursor"`
}

// SessionUpdate is the im.session.update push payload. A nil MsgText tells the
// client to clear the conversation preview.
type SessionUpdate struct {
	TalkMode  int16   `json:"talk_mode"`
	ToFromID  int64   `json:"to_from_id"`
	MsgText   *string `json:"msg_text"`
	UpdatedAt int64   `json:"updated_at"`
}

// ForwardLink records one original message a forward-type message was built from.
type ForwardLink struct {
	ForwardedMsgID string `db:"forwarded_msg_id"`
	SrcMsgID       string `db:"src_msg_id"`
	SrcTalkID      int64  `db:"src_talk_id"`
	SrcSenderID    int64  `db:"src_sender_id"`
}

// UserInfo is the profile slice needed for record building.
type UserInfo struct {
	ID       int64  `db:"id" json:"id"`
	Nickname string `db:"nickname" json:"nickname"`
	Avatar   string `db:"avatar" json:"avatar"`
}
