package models

import (
	"database/sql"
	"time"
)

// Talk modes. Anything else is rejected before a transaction opens.
const (
	TalkModeDirect int16 = 1
	TalkModeGroup  int16 = 2
)

// Talk is a conversation record. A direct talk stores its participant pair
// canonically (user1_id < user2_id); a group talk stores only the group id.
type Talk struct {
	ID        int64     `db:"id" json:"id"`
	TalkMode  int16     `db:"talk_mode" json:"talk_mode"`
	User1ID   *int64    `db:"user1_id" json:"user1_id,omitempty"`
	User2ID   *int64    `db:"user2_id" json:"user2_id,omitempty"`
	GroupID   *int64    `db:"group_id" json:"group_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TalkSession is the per-user "last message" summary row for a talk.
type TalkSession struct {
	UserID       int64          `db:"user_id"`
	TalkID       int64          `db:"talk_id"`
	LastMsgID    sql.NullString `db:"last_msg_id"`
	LastMsgType  sql.NullInt16  `db:"last_msg_type"`
	LastSenderID sql.NullInt64  `db:"last_sender_id"`
	LastDigest   sql.NullString `db:"last_digest"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
