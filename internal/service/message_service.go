package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"im-message-service/internal/models"
	"im-message-service/internal/observability"
	"im-message-service/internal/profile"
	"im-message-service/internal/push"
	"im-message-service/internal/repositories"
)

const (
	defaultPageLimit = 30
	maxPageLimit     = 200
)

var (
	ErrInvalidTalkMode = errors.New("invalid talk mode")
	ErrUnknownMsgType  = errors.New("unknown message type")
	ErrMalformedMsgID  = errors.New("msg_id must be a 32-character hex string")
	// ErrNotSender rejects a revoke attempted by anyone but the author.
	ErrNotSender = errors.New("only the sender can revoke a message")
)

var tracer = otel.Tracer("im-message-service/service")

// Conn is the database surface the service depends on: pool-level queries
// plus transaction begin. Keeping it narrow lets tests drive the send
// transaction without a live pool; WrapDB adapts *sqlx.DB.
type Conn interface {
	sqlx.ExtContext
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one open transaction.
type Tx interface {
	sqlx.ExtContext
	Commit() error
	Rollback() error
}

type sqlxConn struct{ *sqlx.DB }

func (c sqlxConn) Begin(ctx context.Context) (Tx, error) {
	return c.DB.BeginTxx(ctx, nil)
}

// WrapDB adapts a sqlx pool to the Conn surface.
func WrapDB(db *sqlx.DB) Conn {
	return sqlxConn{db}
}

// SendInput carries everything needed to persist one message. A client may
// pin MsgID for idempotent retries; when empty the service assigns one.
type SendInput struct {
	SenderID int64
	TalkMode int16
	ToFromID int64
	MsgType  int16
	Text     string
	Extra    json.RawMessage
	QuoteID  string
	MsgID    string
}

// MessageService is the message-exchange core consumed by the HTTP handlers
// and the background sweeper.
type MessageService interface {
	Send(ctx context.Context, in SendInput) (models.MessageRecord, error)
	LoadRecords(ctx context.Context, userID int64, talkMode int16, toFromID, cursor int64, limit int) (models.MessagePage, error)
	LoadHistoryRecords(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgType int16, cursor int64, limit int) (models.MessagePage, error)
	LoadForwardRecords(ctx context.Context, userID int64, msgIDs []string) ([]models.MessageRecord, error)
	DeleteForUser(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgIDs []string) error
	Revoke(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgID string) error
}

// Service wires the repositories, profile provider and push sink into the
// message-exchange operations.
type Service struct {
	db        Conn
	talks     repositories.TalkRepository
	seqs      repositories.SequenceRepository
	messages  repositories.MessageRepository
	sessions  repositories.SessionRepository
	deletions repositories.DeletionRepository
	forwards  repositories.ForwardRepository
	profiles  profile.Provider
	sink      push.Sink
}

// NewService constructs a Service.
func NewService(
	db Conn,
	talks repositories.TalkRepository,
	seqs repositories.SequenceRepository,
	messages repositories.MessageRepository,
	sessions repositories.SessionRepository,
	deletions repositories.DeletionRepository,
	forwards repositories.ForwardRepository,
	profiles profile.Provider,
	sink push.Sink,
) *Service {
	return &Service{
		db:        db,
		talks:     talks,
		seqs:      seqs,
		messages:  messages,
		sessions:  sessions,
		deletions: deletions,
		forwards:  forwards,
		profiles:  profiles,
		sink:      sink,
	}
}

// Send validates, persists and fans out one message. Talk resolution,
// sequence allocation, the message row and the session summary bump commit
// in a single transaction; pushes happen only after commit. A duplicate
// msg_id is answered with the already-stored record and no side effects.
func (s *Service) Send(ctx context.Context, in SendInput) (models.MessageRecord, error) {
	ctx, span := tracer.Start(ctx, "message.send")
	defer span.End()

	if in.TalkMode != models.TalkModeDirect && in.TalkMode != models.TalkModeGroup {
		return models.MessageRecord{}, ErrInvalidTalkMode
	}
	typeName, ok := models.MsgTypeName(in.MsgType)
	if !ok {
		return models.MessageRecord{}, ErrUnknownMsgType
	}
	msgID := in.MsgID
	if msgID == "" {
		msgID = newMsgID()
	} else if !isHex32(msgID) {
		return models.MessageRecord{}, ErrMalformedMsgID
	}
	span.SetAttributes(
		attribute.String("im.msg_id", msgID),
		attribute.String("im.msg_type", typeName),
	)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("begin send tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	talkID, err := s.resolveTalk(ctx, tx, in.TalkMode, in.SenderID, in.ToFromID)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("resolve talk: %w", err)
	}
	seq, err := s.seqs.Next(ctx, tx, talkID)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("allocate sequence: %w", err)
	}

	m := &models.Message{
		ID:         msgID,
		TalkID:     talkID,
		Sequence:   seq,
		TalkMode:   in.TalkMode,
		MsgType:    in.MsgType,
		SenderID:   in.SenderID,
		QuoteMsgID: in.QuoteID,
	}
	if in.TalkMode == models.TalkModeDirect {
		m.ReceiverID = in.ToFromID
	} else {
		m.GroupID = in.ToFromID
	}
	if in.MsgType == models.MsgTypeText {
		m.ContentText = in.Text
	} else {
		m.Extra = in.Extra
	}

	if err := s.messages.Create(ctx, tx, m); err != nil {
		if errors.Is(err, repositories.ErrDuplicateMessage) {
			_ = tx.Rollback()
			existing, gerr := s.messages.GetByID(ctx, s.db, msgID)
			if gerr != nil {
				return models.MessageRecord{}, fmt.Errorf("reload duplicate msg_id=%s: %w", msgID, gerr)
			}
			// only the original sender's retry is answered idempotently;
			// someone else reusing the id must not receive a foreign record
			if existing.SenderID != in.SenderID {
				return models.MessageRecord{}, repositories.ErrDuplicateMessage
			}
			logrus.WithFields(logrus.Fields{"msg_id": msgID, "sender_id": in.SenderID}).
				Info("duplicate send answered idempotently")
			return s.buildRecord(ctx, &existing), nil
		}
		return models.MessageRecord{}, fmt.Errorf("store message: %w", err)
	}

	if in.MsgType == models.MsgTypeForward {
		s.recordForwardProvenance(ctx, tx, m)
	}

	digest := renderDigest(m.MsgType, m.ContentText)
	participants := []int64{in.SenderID}
	if in.TalkMode == models.TalkModeDirect {
		participants = append(participants, in.ToFromID)
	}
	if err := s.sessions.BumpOnNewMessage(ctx, tx, m, digest, participants); err != nil {
		return models.MessageRecord{}, fmt.Errorf("bump sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.MessageRecord{}, fmt.Errorf("commit send tx: %w", err)
	}
	committed = true

	observability.IncMessageSent(typeName)
	rec := s.buildRecord(ctx, m)
	s.sink.PushToTalk(ctx, in.TalkMode, in.ToFromID, in.SenderID, push.EventMessage, rec)
	return rec, nil
}

// recordForwardProvenance links a forward message to its sources. Provenance
// is advisory; a malformed or stale source list never fails the send.
func (s *Service) recordForwardProvenance(ctx context.Context, q sqlx.ExtContext, m *models.Message) {
	var fx models.ForwardExtra
	if err := json.Unmarshal(m.Extra, &fx); err != nil || len(fx.MsgIDs) == 0 {
		return
	}
	sources, err := s.messages.GetByIDs(ctx, q, fx.MsgIDs)
	if err != nil {
		logrus.Warnf("load forward sources for msg_id=%s: %v", m.ID, err)
		return
	}
	links := make([]models.ForwardLink, 0, len(sources))
	for _, src := range sources {
		links = append(links, models.ForwardLink{
			ForwardedMsgID: m.ID,
			SrcMsgID:       src.ID,
			SrcTalkID:      src.TalkID,
			SrcSenderID:    src.SenderID,
		})
	}
	if err := s.forwards.AddLinks(ctx, q, links); err != nil {
		logrus.Warnf("record forward links for msg_id=%s: %v", m.ID, err)
	}
}

// LoadRecords returns one descending page of the talk, excluding messages the
// caller has hidden. A talk with no history yields an empty page with the
// cursor unchanged.
func (s *Service) LoadRecords(ctx context.Context, userID int64, talkMode int16, toFromID, cursor int64, limit int) (models.MessagePage, error) {
	return s.loadPage(ctx, userID, talkMode, toFromID, 0, cursor, limit)
}

// LoadHistoryRecords is LoadRecords narrowed to one message type.
func (s *Service) LoadHistoryRecords(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgType int16, cursor int64, limit int) (models.MessagePage, error) {
	return s.loadPage(ctx, userID, talkMode, toFromID, msgType, cursor, limit)
}

func (s *Service) loadPage(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgType int16, cursor int64, limit int) (models.MessagePage, error) {
	if talkMode != models.TalkModeDirect && talkMode != models.TalkModeGroup {
		return models.MessagePage{}, ErrInvalidTalkMode
	}
	limit = clampLimit(limit)
	page := models.MessagePage{Items: []models.MessageRecord{}, Cursor: cursor}

	talkID, err := s.lookupTalk(ctx, talkMode, userID, toFromID)
	if errors.Is(err, repositories.ErrTalkNotFound) {
		return page, nil
	}
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("lookup talk: %w", err)
	}

	msgs, err := s.messages.ListRecentDesc(ctx, s.db, talkID, cursor, limit, userID, msgType)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	page.Items = s.buildRecords(ctx, msgs)
	if len(msgs) > 0 {
		page.Cursor = msgs[len(msgs)-1].Sequence
	}
	return page, nil
}

// LoadForwardRecords resolves the source records of a forward message. Ids
// with no stored row are omitted.
func (s *Service) LoadForwardRecords(ctx context.Context, userID int64, msgIDs []string) ([]models.MessageRecord, error) {
	msgs, err := s.messages.GetByIDs(ctx, s.db, msgIDs)
	if err != nil {
		return nil, fmt.Errorf("load forward records: %w", err)
	}
	return s.buildRecords(ctx, msgs), nil
}

// DeleteForUser hides the given messages from the caller only, then re-derives
// the caller's session summary. Other participants are unaffected.
func (s *Service) DeleteForUser(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgIDs []string) error {
	if talkMode != models.TalkModeDirect && talkMode != models.TalkModeGroup {
		return ErrInvalidTalkMode
	}
	if len(msgIDs) == 0 {
		return nil
	}
	talkID, err := s.lookupTalk(ctx, talkMode, userID, toFromID)
	if errors.Is(err, repositories.ErrTalkNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup talk: %w", err)
	}
	for _, id := range msgIDs {
		if err := s.deletions.HideForUser(ctx, s.db, id, userID); err != nil {
			return fmt.Errorf("hide msg_id=%s: %w", id, err)
		}
		observability.IncUserDelete()
	}
	return s.RecomputeForUser(ctx, userID, talkID)
}

// Revoke globally retracts a message. Only its sender may revoke it. Every
// user whose session summary points at the revoked message gets that summary
// re-derived and pushed.
func (s *Service) Revoke(ctx context.Context, userID int64, talkMode int16, toFromID int64, msgID string) error {
	ctx, span := tracer.Start(ctx, "message.revoke")
	defer span.End()

	m, err := s.messages.GetByID(ctx, s.db, msgID)
	if err != nil {
		return err
	}
	if m.SenderID != userID {
		return ErrNotSender
	}
	if err := s.messages.Revoke(ctx, s.db, msgID, userID); err != nil {
		return fmt.Errorf("revoke msg_id=%s: %w", msgID, err)
	}
	observability.IncRevoke()

	affected, err := s.sessions.ListUsersByLastMsg(ctx, s.db, m.TalkID, msgID)
	if err != nil {
		return fmt.Errorf("list affected sessions: %w", err)
	}
	for _, uid := range affected {
		if err := s.RecomputeForUser(ctx, uid, m.TalkID); err != nil {
			logrus.Warnf("recompute session user_id=%d talk_id=%d: %v", uid, m.TalkID, err)
		}
	}
	return nil
}

// RecomputeForUser re-derives one user's summary for a talk from the newest
// message still visible to them, persists it and pushes the update. No
// visible message clears the summary; the push carries a nil preview so the
// client empties its row.
func (s *Service) RecomputeForUser(ctx context.Context, userID, talkID int64) error {
	talk, err := s.talks.GetByID(ctx, s.db, talkID)
	if err != nil {
		return fmt.Errorf("load talk %d: %w", talkID, err)
	}

	upd := models.SessionUpdate{
		TalkMode:  talk.TalkMode,
		ToFromID:  counterpartFor(&talk, userID),
		UpdatedAt: nowMillis(),
	}

	last, err := s.messages.LatestVisible(ctx, s.db, talkID, userID)
	switch {
	case err == nil:
		digest := renderDigest(last.MsgType, last.ContentText)
		if err := s.sessions.SetLastMessage(ctx, s.db, userID, talkID, &last, digest); err != nil {
			return fmt.Errorf("set session summary: %w", err)
		}
		upd.MsgText = &digest
	case errors.Is(err, repositories.ErrMessageNotFound):
		if err := s.sessions.ClearLastMessage(ctx, s.db, userID, talkID); err != nil {
			return fmt.Errorf("clear session summary: %w", err)
		}
	default:
		return fmt.Errorf("find visible tail: %w", err)
	}

	observability.IncSessionRecompute()
	s.sink.PushToUser(ctx, userID, push.EventSessionUpdate, upd)
	return nil
}

func (s *Service) resolveTalk(ctx context.Context, q sqlx.ExtContext, talkMode int16, userID, toFromID int64) (int64, error) {
	if talkMode == models.TalkModeGroup {
		return s.talks.ResolveGroupTalk(ctx, q, toFromID)
	}
	return s.talks.ResolveDirectTalk(ctx, q, userID, toFromID)
}

func (s *Service) lookupTalk(ctx context.Context, talkMode int16, userID, toFromID int64) (int64, error) {
	if talkMode == models.TalkModeGroup {
		return s.talks.GetGroupTalkID(ctx, s.db, toFromID)
	}
	return s.talks.GetDirectTalkID(ctx, s.db, userID, toFromID)
}

// counterpartFor maps a talk back to the to_from_id a given user addresses it
// by: the group id, or the other member of a direct pair.
func counterpartFor(talk *models.Talk, userID int64) int64 {
	if talk.TalkMode == models.TalkModeGroup {
		if talk.GroupID != nil {
			return *talk.GroupID
		}
		return 0
	}
	if talk.User1ID != nil && *talk.User1ID != userID {
		return *talk.User1ID
	}
	if talk.User2ID != nil {
		return *talk.User2ID
	}
	return 0
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func newMsgID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func isHex32(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
