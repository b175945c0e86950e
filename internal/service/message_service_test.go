package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"im-message-service/internal/mocks"
	"im-message-service/internal/models"
	"im-message-service/internal/push"
	"im-message-service/internal/repositories"
	"im-message-service/internal/service"
)

type deps struct {
	conn      *mocks.Conn
	tx        *mocks.Tx
	talks     *mocks.TalkRepository
	seqs      *mocks.SequenceRepository
	messages  *mocks.MessageRepository
	sessions  *mocks.SessionRepository
	deletions *mocks.DeletionRepository
	forwards  *mocks.ForwardRepository
	profiles  *mocks.ProfileProvider
	sink      *mocks.PushSink
}

func newTestService() (*service.Service, *deps) {
	d := &deps{
		conn:      &mocks.Conn{},
		tx:        &mocks.Tx{},
		talks:     &mocks.TalkRepository{},
		seqs:      &mocks.SequenceRepository{},
		messages:  &mocks.MessageRepository{},
		sessions:  &mocks.SessionRepository{},
		deletions: &mocks.DeletionRepository{},
		forwards:  &mocks.ForwardRepository{},
		profiles:  &mocks.ProfileProvider{},
		sink:      &mocks.PushSink{},
	}
	svc := service.NewService(d.conn,
		d.talks, d.seqs, d.messages, d.sessions, d.deletions, d.forwards, d.profiles, d.sink)
	return svc, d
}

func directTalk(id, u1, u2 int64) models.Talk {
	return models.Talk{ID: id, TalkMode: models.TalkModeDirect, User1ID: &u1, User2ID: &u2}
}

func TestSendRejectsBadInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Send(ctx, service.SendInput{
		SenderID: 7, TalkMode: 9, ToFromID: 8, MsgType: models.MsgTypeText,
	})
	require.ErrorIs(t, err, service.ErrInvalidTalkMode)

	_, err = svc.Send(ctx, service.SendInput{
		SenderID: 7, TalkMode: models.TalkModeDirect, ToFromID: 8, MsgType: 99,
	})
	require.ErrorIs(t, err, service.ErrUnknownMsgType)

	_, err = svc.Send(ctx, service.SendInput{
		SenderID: 7, TalkMode: models.TalkModeDirect, ToFromID: 8,
		MsgType: models.MsgTypeText, MsgID: "not-hex",
	})
	require.ErrorIs(t, err, service.ErrMalformedMsgID)
}

func TestSendFirstContactAllocatesSequenceOne(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.conn.On("Begin", mock.Anything).Return(d.tx, nil)
	d.talks.On("ResolveDirectTalk", mock.Anything, d.tx, int64(1), int64(2)).
		Return(int64(3), nil)
	d.seqs.On("Next", mock.Anything, d.tx, int64(3)).Return(int64(1), nil)
	sent := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	d.messages.On("Create", mock.Anything, d.tx, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(*models.Message).CreatedAt = sent
		}).Return(nil)
	d.sessions.On("BumpOnNewMessage", mock.Anything, d.tx,
		mock.Anything, "hi", []int64{1, 2}).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.profiles.On("GetUserInfo", mock.Anything, int64(1)).
		Return(models.UserInfo{ID: 1, Nickname: "alice"}, nil)
	d.sink.On("PushToTalk", mock.Anything, models.TalkModeDirect, int64(2), int64(1),
		push.EventMessage, mock.Anything).Return()

	rec, err := svc.Send(ctx, service.SendInput{
		SenderID: 1, TalkMode: models.TalkModeDirect, ToFromID: 2,
		MsgType: models.MsgTypeText, Text: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Sequence)
	assert.Len(t, rec.MsgID, 32)
	assert.Equal(t, "alice", rec.Nickname)
	assert.JSONEq(t, `{"content":"hi"}`, string(rec.Extra))

	d.tx.AssertExpectations(t)
	d.sink.AssertNumberOfCalls(t, "PushToTalk", 1)
	d.tx.AssertNotCalled(t, "Rollback")
}

func TestSendDuplicateIsIdempotentForSameSender(t *testing.T) {
	svc, d := newTestService()
	msgID := strings.Repeat("ab", 16)

	d.conn.On("Begin", mock.Anything).Return(d.tx, nil)
	d.talks.On("ResolveDirectTalk", mock.Anything, d.tx, int64(1), int64(2)).
		Return(int64(3), nil)
	d.seqs.On("Next", mock.Anything, d.tx, int64(3)).Return(int64(5), nil)
	d.messages.On("Create", mock.Anything, d.tx, mock.Anything).
		Return(repositories.ErrDuplicateMessage)
	d.tx.On("Rollback").Return(nil)
	d.messages.On("GetByID", mock.Anything, mock.Anything, msgID).
		Return(models.Message{ID: msgID, TalkID: 3, Sequence: 2, SenderID: 1,
			MsgType: models.MsgTypeText, ContentText: "hi"}, nil)
	d.profiles.On("GetUserInfo", mock.Anything, int64(1)).
		Return(models.UserInfo{ID: 1, Nickname: "alice"}, nil)

	rec, err := svc.Send(context.Background(), service.SendInput{
		SenderID: 1, TalkMode: models.TalkModeDirect, ToFromID: 2,
		MsgType: models.MsgTypeText, Text: "hi", MsgID: msgID,
	})
	require.NoError(t, err)
	assert.Equal(t, msgID, rec.MsgID)
	assert.Equal(t, int64(2), rec.Sequence)

	// a retry must not double-notify or touch summaries
	d.sink.AssertNotCalled(t, "PushToTalk",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.sessions.AssertNotCalled(t, "BumpOnNewMessage",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.tx.AssertNotCalled(t, "Commit")
}

func TestSendDuplicateFromOtherSenderIsRejected(t *testing.T) {
	svc, d := newTestService()
	msgID := strings.Repeat("cd", 16)

	d.conn.On("Begin", mock.Anything).Return(d.tx, nil)
	d.talks.On("ResolveDirectTalk", mock.Anything, d.tx, int64(9), int64(2)).
		Return(int64(3), nil)
	d.seqs.On("Next", mock.Anything, d.tx, int64(3)).Return(int64(5), nil)
	d.messages.On("Create", mock.Anything, d.tx, mock.Anything).
		Return(repositories.ErrDuplicateMessage)
	d.tx.On("Rollback").Return(nil)
	d.messages.On("GetByID", mock.Anything, mock.Anything, msgID).
		Return(models.Message{ID: msgID, TalkID: 3, SenderID: 1}, nil)

	_, err := svc.Send(context.Background(), service.SendInput{
		SenderID: 9, TalkMode: models.TalkModeDirect, ToFromID: 2,
		MsgType: models.MsgTypeText, Text: "hi", MsgID: msgID,
	})
	require.ErrorIs(t, err, repositories.ErrDuplicateMessage)
	d.profiles.AssertNotCalled(t, "GetUserInfo", mock.Anything, mock.Anything)
}

func TestSendProvenanceFailureDoesNotAbort(t *testing.T) {
	svc, d := newTestService()

	d.conn.On("Begin", mock.Anything).Return(d.tx, nil)
	d.talks.On("ResolveGroupTalk", mock.Anything, d.tx, int64(5)).Return(int64(4), nil)
	d.seqs.On("Next", mock.Anything, d.tx, int64(4)).Return(int64(7), nil)
	d.messages.On("Create", mock.Anything, d.tx, mock.Anything).Return(nil)
	d.messages.On("GetByIDs", mock.Anything, d.tx, []string{"aaaa"}).
		Return(nil, assert.AnError)
	d.sessions.On("BumpOnNewMessage", mock.Anything, d.tx,
		mock.Anything, "[non-text message]", []int64{1}).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.profiles.On("GetUserInfo", mock.Anything, int64(1)).
		Return(models.UserInfo{}, nil)
	d.sink.On("PushToTalk", mock.Anything, models.TalkModeGroup, int64(5), int64(1),
		push.EventMessage, mock.Anything).Return()

	rec, err := svc.Send(context.Background(), service.SendInput{
		SenderID: 1, TalkMode: models.TalkModeGroup, ToFromID: 5,
		MsgType: models.MsgTypeForward, Extra: json.RawMessage(`{"msg_ids":["aaaa"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Sequence)
	d.forwards.AssertNotCalled(t, "AddLinks", mock.Anything, mock.Anything, mock.Anything)
	d.tx.AssertExpectations(t)
}

func TestLoadRecordsBuildsPage(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.talks.On("GetDirectTalkID", mock.Anything, mock.Anything, int64(7), int64(8)).
		Return(int64(3), nil)
	sent := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "aaaa", TalkID: 3, Sequence: 10, MsgType: models.MsgTypeText,
			SenderID: 8, ContentText: "hello", CreatedAt: sent},
		{ID: "bbbb", TalkID: 3, Sequence: 9, MsgType: models.MsgTypeImage,
			SenderID: 7, Extra: json.RawMessage(`{"url":"x.png"}`), CreatedAt: sent},
	}
	d.messages.On("ListRecentDesc", mock.Anything, mock.Anything,
		int64(3), int64(0), 30, int64(7), int16(0)).Return(msgs, nil)
	d.profiles.On("BulkUserInfo", mock.Anything, []int64{8, 7}).
		Return([]models.UserInfo{{ID: 8, Nickname: "bob", Avatar: "b.png"}}, nil)

	page, err := svc.LoadRecords(ctx, 7, models.TalkModeDirect, 8, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(9), page.Cursor)

	assert.Equal(t, "bob", page.Items[0].Nickname)
	assert.Equal(t, "2026-08-29 10:30:00", page.Items[0].SendTime)
	assert.JSONEq(t, `{"content":"hello"}`, string(page.Items[0].Extra))
	assert.JSONEq(t, `{}`, string(page.Items[0].Quote))

	// sender without a profile row degrades to blank fields
	assert.Empty(t, page.Items[1].Nickname)
	assert.JSONEq(t, `{"url":"x.png"}`, string(page.Items[1].Extra))
}

func TestLoadRecordsUnknownTalkIsEmptyPage(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetDirectTalkID", mock.Anything, mock.Anything, int64(7), int64(8)).
		Return(int64(0), repositories.ErrTalkNotFound)

	page, err := svc.LoadRecords(context.Background(), 7, models.TalkModeDirect, 8, 42, 30)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(42), page.Cursor)
	d.messages.AssertNotCalled(t, "ListRecentDesc",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadRecordsClampsLimit(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetGroupTalkID", mock.Anything, mock.Anything, int64(5)).
		Return(int64(4), nil)
	d.messages.On("ListRecentDesc", mock.Anything, mock.Anything,
		int64(4), int64(0), 200, int64(7), int16(0)).Return([]models.Message{}, nil)

	_, err := svc.LoadRecords(context.Background(), 7, models.TalkModeGroup, 5, 0, 999)
	require.NoError(t, err)
	d.messages.AssertExpectations(t)
}

func TestLoadHistoryRecordsAppliesTypeFilter(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetDirectTalkID", mock.Anything, mock.Anything, int64(7), int64(8)).
		Return(int64(3), nil)
	d.messages.On("ListRecentDesc", mock.Anything, mock.Anything,
		int64(3), int64(50), 30, int64(7), models.MsgTypeImage).Return([]models.Message{}, nil)

	page, err := svc.LoadHistoryRecords(context.Background(),
		7, models.TalkModeDirect, 8, models.MsgTypeImage, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), page.Cursor)
	d.messages.AssertExpectations(t)
}

func TestLoadForwardRecordsRendersQuote(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	msgs := []models.Message{
		{ID: "cccc", TalkID: 3, Sequence: 5, MsgType: models.MsgTypeText,
			SenderID: 7, ContentText: "reply", QuoteMsgID: "q1"},
	}
	d.messages.On("GetByIDs", mock.Anything, mock.Anything, []string{"cccc"}).Return(msgs, nil)
	d.messages.On("GetByID", mock.Anything, mock.Anything, "q1").
		Return(models.Message{ID: "q1", SenderID: 5, MsgType: models.MsgTypeText,
			ContentText: "quoted text"}, nil)
	d.profiles.On("BulkUserInfo", mock.Anything, []int64{7}).
		Return([]models.UserInfo{{ID: 7, Nickname: "alice"}}, nil)

	records, err := svc.LoadForwardRecords(ctx, 7, []string{"cccc"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"quote_id":"q1","from_id":5,"content":"quoted text"}`, string(records[0].Quote))
}

func TestRevokeRequiresSender(t *testing.T) {
	svc, d := newTestService()

	d.messages.On("GetByID", mock.Anything, mock.Anything, "m1").
		Return(models.Message{ID: "m1", TalkID: 3, SenderID: 7}, nil)

	err := svc.Revoke(context.Background(), 8, models.TalkModeDirect, 7, "m1")
	require.ErrorIs(t, err, service.ErrNotSender)
	d.messages.AssertNotCalled(t, "Revoke",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRevokeRecomputesPointedSessions(t *testing.T) {
	svc, d := newTestService()

	d.messages.On("GetByID", mock.Anything, mock.Anything, "m1").
		Return(models.Message{ID: "m1", TalkID: 3, SenderID: 7}, nil)
	d.messages.On("Revoke", mock.Anything, mock.Anything, "m1", int64(7)).Return(nil)
	d.sessions.On("ListUsersByLastMsg", mock.Anything, mock.Anything, int64(3), "m1").
		Return([]int64{7, 8}, nil)

	d.talks.On("GetByID", mock.Anything, mock.Anything, int64(3)).
		Return(directTalk(3, 7, 8), nil)
	prior := models.Message{ID: "m0", TalkID: 3, Sequence: 1,
		MsgType: models.MsgTypeText, SenderID: 8, ContentText: "earlier"}
	d.messages.On("LatestVisible", mock.Anything, mock.Anything, int64(3), mock.Anything).
		Return(prior, nil)
	d.sessions.On("SetLastMessage", mock.Anything, mock.Anything,
		mock.Anything, int64(3), mock.Anything, "earlier").Return(nil)
	d.sink.On("PushToUser", mock.Anything, mock.Anything, push.EventSessionUpdate,
		mock.MatchedBy(func(upd models.SessionUpdate) bool {
			return upd.MsgText != nil && *upd.MsgText == "earlier"
		})).Return()

	err := svc.Revoke(context.Background(), 7, models.TalkModeDirect, 8, "m1")
	require.NoError(t, err)
	d.sink.AssertNumberOfCalls(t, "PushToUser", 2)
	d.sessions.AssertNumberOfCalls(t, "SetLastMessage", 2)
}

func TestRecomputeClearsWhenNothingVisible(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetByID", mock.Anything, mock.Anything, int64(3)).
		Return(directTalk(3, 7, 8), nil)
	d.messages.On("LatestVisible", mock.Anything, mock.Anything, int64(3), int64(7)).
		Return(models.Message{}, repositories.ErrMessageNotFound)
	d.sessions.On("ClearLastMessage", mock.Anything, mock.Anything, int64(7), int64(3)).
		Return(nil)
	d.sink.On("PushToUser", mock.Anything, int64(7), push.EventSessionUpdate,
		mock.MatchedBy(func(upd models.SessionUpdate) bool {
			return upd.MsgText == nil && upd.ToFromID == 8
		})).Return()

	err := svc.RecomputeForUser(context.Background(), 7, 3)
	require.NoError(t, err)
	d.sessions.AssertExpectations(t)
	d.sink.AssertExpectations(t)
}

func TestDeleteForUserHidesAndRecomputes(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetDirectTalkID", mock.Anything, mock.Anything, int64(7), int64(8)).
		Return(int64(3), nil)
	d.deletions.On("HideForUser", mock.Anything, mock.Anything, "m1", int64(7)).Return(nil)
	d.deletions.On("HideForUser", mock.Anything, mock.Anything, "m2", int64(7)).Return(nil)

	d.talks.On("GetByID", mock.Anything, mock.Anything, int64(3)).
		Return(directTalk(3, 7, 8), nil)
	prior := models.Message{ID: "m0", TalkID: 3, Sequence: 1,
		MsgType: models.MsgTypeText, SenderID: 8, ContentText: "still here"}
	d.messages.On("LatestVisible", mock.Anything, mock.Anything, int64(3), int64(7)).
		Return(prior, nil)
	d.sessions.On("SetLastMessage", mock.Anything, mock.Anything,
		int64(7), int64(3), mock.Anything, "still here").Return(nil)
	d.sink.On("PushToUser", mock.Anything, int64(7), push.EventSessionUpdate, mock.Anything).Return()

	err := svc.DeleteForUser(context.Background(), 7, models.TalkModeDirect, 8,
		[]string{"m1", "m2"})
	require.NoError(t, err)
	d.deletions.AssertNumberOfCalls(t, "HideForUser", 2)
	d.sink.AssertNumberOfCalls(t, "PushToUser", 1)
}

func TestDeleteForUserIgnoresUnknownTalk(t *testing.T) {
	svc, d := newTestService()

	d.talks.On("GetDirectTalkID", mock.Anything, mock.Anything, int64(7), int64(8)).
		Return(int64(0), repositories.ErrTalkNotFound)

	err := svc.DeleteForUser(context.Background(), 7, models.TalkModeDirect, 8, []string{"m1"})
	require.NoError(t, err)
	d.deletions.AssertNotCalled(t, "HideForUser",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepRevokedTailsRecomputes(t *testing.T) {
	svc, d := newTestService()

	d.sessions.On("ListRevokedTails", mock.Anything, mock.Anything, 500).
		Return([]repositories.SessionPair{{UserID: 7, TalkID: 3}}, nil)
	d.talks.On("GetByID", mock.Anything, mock.Anything, int64(3)).
		Return(directTalk(3, 7, 8), nil)
	d.messages.On("LatestVisible", mock.Anything, mock.Anything, int64(3), int64(7)).
		Return(models.Message{}, repositories.ErrMessageNotFound)
	d.sessions.On("ClearLastMessage", mock.Anything, mock.Anything, int64(7), int64(3)).
		Return(nil)
	d.sink.On("PushToUser", mock.Anything, int64(7), push.EventSessionUpdate, mock.Anything).Return()

	svc.SweepRevokedTails(context.Background(), 500)
	d.sessions.AssertExpectations(t)
}
