package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"im-message-service/internal/models"
)

const sendTimeLayout = "2006-01-02 15:04:05"

var emptyObject = json.RawMessage("{}")

// buildRecord assembles the outbound record for one message. Profile lookup
// failures degrade to blank nickname/avatar rather than failing the read.
func (s *Service) buildRecord(ctx context.Context, m *models.Message) models.MessageRecord {
	rec := s.bareRecord(ctx, m)
	ui, err := s.profiles.GetUserInfo(ctx, m.SenderID)
	if err != nil {
		logrus.Warnf("profile lookup failed user_id=%d: %v", m.SenderID, err)
	} else {
		rec.Nickname = ui.Nickname
		rec.Avatar = ui.Avatar
	}
	return rec
}

// buildRecords assembles records for a page, resolving all sender profiles in
// one bulk call.
func (s *Service) buildRecords(ctx context.Context, msgs []models.Message) []models.MessageRecord {
	records := make([]models.MessageRecord, 0, len(msgs))
	if len(msgs) == 0 {
		return records
	}

	seen := make(map[int64]struct{}, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for i := range msgs {
		if _, ok := seen[msgs[i].SenderID]; ok {
			continue
		}
		seen[msgs[i].SenderID] = struct{}{}
		ids = append(ids, msgs[i].SenderID)
	}

	profiles := make(map[int64]models.UserInfo, len(ids))
	infos, err := s.profiles.BulkUserInfo(ctx, ids)
	if err != nil {
		logrus.Warnf("bulk profile lookup failed: %v", err)
	}
	for _, ui := range infos {
		profiles[ui.ID] = ui
	}

	for i := range msgs {
		rec := s.bareRecord(ctx, &msgs[i])
		if ui, ok := profiles[msgs[i].SenderID]; ok {
			rec.Nickname = ui.Nickname
			rec.Avatar = ui.Avatar
		}
		records = append(records, rec)
	}
	return records
}

func (s *Service) bareRecord(ctx context.Context, m *models.Message) models.MessageRecord {
	return models.MessageRecord{
		MsgID:     m.ID,
		Sequence:  m.Sequence,
		MsgType:   m.MsgType,
		FromID:    m.SenderID,
		IsRevoked: m.IsRevoked,
		SendTime:  m.CreatedAt.Format(sendTimeLayout),
		Extra:     renderExtra(m),
		Quote:     s.renderQuote(ctx, m.QuoteMsgID),
	}
}

// renderExtra rebuilds the read-time extra. Text messages get a canonical
// {"content": ...} object derived from the stored body; other types carry
// their stored payload through unchanged.
func renderExtra(m *models.Message) json.RawMessage {
	if m.MsgType == models.MsgTypeText {
		raw, err := json.Marshal(models.TextExtra{Content: m.ContentText})
		if err != nil {
			return emptyObject
		}
		return raw
	}
	if len(m.Extra) == 0 {
		return emptyObject
	}
	return m.Extra
}

// renderQuote resolves a quoted message into its compact reference, or an
// empty object when there is no quote or the quoted message is gone.
func (s *Service) renderQuote(ctx context.Context, quoteID string) json.RawMessage {
	if quoteID == "" {
		return emptyObject
	}
	quoted, err := s.messages.GetByID(ctx, s.db, quoteID)
	if err != nil {
		return emptyObject
	}
	raw, err := json.Marshal(models.QuoteRef{
		QuoteID: quoted.ID,
		FromID:  quoted.SenderID,
		Content: renderDigest(quoted.MsgType, quoted.ContentText),
	})
	if err != nil {
		return emptyObject
	}
	return raw
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
