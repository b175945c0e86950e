package mocks

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"im-message-service/internal/models"
	"im-message-service/internal/profile"
	"im-message-service/internal/push"
	"im-message-service/internal/repositories"
	"im-message-service/internal/service"
)

// Testify mocks for the repository and service contracts, used by the
// service and handler tests.

// extContextStub satisfies sqlx.ExtContext for values that only travel
// through mocked repositories; none of its methods are ever reached.
type extContextStub struct{}

func (extContextStub) DriverName() string { return "postgres" }

func (extContextStub) Rebind(query string) string { return query }

func (extContextStub) BindNamed(query string, arg any) (string, []any, error) {
	return query, nil, nil
}

func (extContextStub) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}

func (extContextStub) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}

func (extContextStub) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}

func (extContextStub) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

type Conn struct {
	mock.Mock
	extContextStub
}

var _ service.Conn = (*Conn)(nil)

func (m *Conn) Begin(ctx context.Context) (service.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(service.Tx), args.Error(1)
}

type Tx struct {
	mock.Mock
	extContextStub
}

var _ service.Tx = (*Tx)(nil)

func (m *Tx) Commit() error {
	return m.Called().Error(0)
}

func (m *Tx) Rollback() error {
	return m.Called().Error(0)
}

type TalkRepository struct{ mock.Mock }

var _ repositories.TalkRepository = (*TalkRepository)(nil)

func (m *TalkRepository) GetByID(ctx context.Context, q sqlx.ExtContext, talkID int64) (models.Talk, error) {
	args := m.Called(ctx, q, talkID)
	return args.Get(0).(models.Talk), args.Error(1)
}

func (m *TalkRepository) GetDirectTalkID(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error) {
	args := m.Called(ctx, q, userID, peerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TalkRepository) GetGroupTalkID(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error) {
	args := m.Called(ctx, q, groupID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TalkRepository) ResolveDirectTalk(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error) {
	args := m.Called(ctx, q, userID, peerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TalkRepository) ResolveGroupTalk(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error) {
	args := m.Called(ctx, q, groupID)
	return args.Get(0).(int64), args.Error(1)
}

type SequenceRepository struct{ mock.Mock }

var _ repositories.SequenceRepository = (*SequenceRepository)(nil)

func (m *SequenceRepository) Next(ctx context.Context, q sqlx.ExtContext, talkID int64) (int64, error) {
	args := m.Called(ctx, q, talkID)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepository struct{ mock.Mock }

var _ repositories.MessageRepository = (*MessageRepository)(nil)

func (m *MessageRepository) Create(ctx context.Context, q sqlx.ExtContext, msg *models.Message) error {
	args := m.Called(ctx, q, msg)
	return args.Error(0)
}

func (m *MessageRepository) GetByID(ctx context.Context, q sqlx.ExtContext, msgID string) (models.Message, error) {
	args := m.Called(ctx, q, msgID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepository) GetByIDs(ctx context.Context, q sqlx.ExtContext, msgIDs []string) ([]models.Message, error) {
	args := m.Called(ctx, q, msgIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepository) ListRecentDesc(ctx context.Context, q sqlx.ExtContext, talkID, cursor int64, limit int, userID int64, msgType int16) ([]models.Message, error) {
	args := m.Called(ctx, q, talkID, cursor, limit, userID, msgType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepository) LatestVisible(ctx context.Context, q sqlx.ExtContext, talkID, userID int64) (models.Message, error) {
	args := m.Called(ctx, q, talkID, userID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepository) Revoke(ctx context.Context, q sqlx.ExtContext, msgID string, actorID int64) error {
	args := m.Called(ctx, q, msgID, actorID)
	return args.Error(0)
}

type SessionRepository struct{ mock.Mock }

var _ repositories.SessionRepository = (*SessionRepository)(nil)

func (m *SessionRepository) BumpOnNewMessage(ctx context.Context, q sqlx.ExtContext, msg *models.Message, digest string, participants []int64) error {
	args := m.Called(ctx, q, msg, digest, participants)
	return args.Error(0)
}

func (m *SessionRepository) SetLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64, msg *models.Message, digest string) error {
	args := m.Called(ctx, q, userID, talkID, msg, digest)
	return args.Error(0)
}

func (m *SessionRepository) ClearLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64) error {
	args := m.Called(ctx, q, userID, talkID)
	return args.Error(0)
}

func (m *SessionRepository) ListUsersByLastMsg(ctx context.Context, q sqlx.ExtContext, talkID int64, msgID string) ([]int64, error) {
	args := m.Called(ctx, q, talkID, msgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *SessionRepository) ListRevokedTails(ctx context.Context, q sqlx.ExtContext, limit int) ([]repositories.SessionPair, error) {
	args := m.Called(ctx, q, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.SessionPair), args.Error(1)
}

type DeletionRepository struct{ mock.Mock }

var _ repositories.DeletionRepository = (*DeletionRepository)(nil)

func (m *DeletionRepository) HideForUser(ctx context.Context, q sqlx.ExtContext, msgID string, userID int64) error {
	args := m.Called(ctx, q, msgID, userID)
	return args.Error(0)
}

type ForwardRepository struct{ mock.Mock }

var _ repositories.ForwardRepository = (*ForwardRepository)(nil)

func (m *ForwardRepository) AddLinks(ctx context.Context, q sqlx.ExtContext, links []models.ForwardLink) error {
	args := m.Called(ctx, q, links)
	return args.Error(0)
}

type ProfileProvider struct{ mock.Mock }

var _ profile.Provider = (*ProfileProvider)(nil)

func (m *ProfileProvider) GetUserInfo(ctx context.Context, userID int64) (models.UserInfo, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.UserInfo), args.Error(1)
}

func (m *ProfileProvider) BulkUserInfo(ctx context.Context, ids []int64) ([]models.UserInfo, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserInfo), args.Error(1)
}

type PushSink struct{ mock.Mock }

var _ push.Sink = (*PushSink)(nil)

func (m *PushSink) PushToTalk(ctx context.Context, talkMode int16, toFromID, fromID int64, event string, payload any) {
	m.Called(ctx, talkMode, toFromID, fromID, event, payload)
}

func (m *PushSink) PushToUser(ctx context.Context, userID int64, event string, payload any) {
	m.Called(ctx, userID, event, payload)
}

type MessageService struct{ mock.Mock }

var _ service.MessageService = (*MessageService)(nil)

func (m *MessageService) Send(ctx context.Context, in service.SendInput) (models.MessageRecord, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.MessageRecord), args.Error(1)
}

func (m *MessageService) LoadRecords(ctx context.Context, userID int64, talkMode int16, toFromID, cursor int64, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, userID, talkMode, toFromID, cursor, limit)
	return args.Get(0).(models.MessagePage), args.Error(1)
}

func (m *MessageService) LoadHistoryRecords(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgType int16, cursor int64, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, userID, talkMode, toFromID, msgType, cursor, limit)
	return args.Get(0).(models.MessagePage), args.Error(1)
}

func (m *MessageService) LoadForwardRecords(ctx context.Context, userID int64, msgIDs []string) ([]models.MessageRecord, error) {
	args := m.Called(ctx, userID, msgIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MessageRecord), args.Error(1)
}

func (m *MessageService) DeleteForUser(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgIDs []string) error {
	args := m.Called(ctx, userID, talkMode, toFromID, msgIDs)
	return args.Error(0)
}

func (m *MessageService) Revoke(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgID string) error {
	args := m.Called(ctx, userID, talkMode, toFromID, msgID)
	return args.Error(0)
}
