package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SweepRevokedTails re-derives session summaries that still point at a
// revoked message. The revoke path recomputes affected summaries inline, but
// a crash between the revoke update and the fan-out can leave stale rows;
// the cron schedule drains them.
func (s *Service) SweepRevokedTails(ctx context.Context, batch int) {
	pairs, err := s.sessions.ListRevokedTails(ctx, s.db, batch)
	if err != nil {
		logrus.Warnf("list stale session summaries: %v", err)
		return
	}
	for _, p := range pairs {
		if err := s.RecomputeForUser(ctx, p.UserID, p.TalkID); err != nil {
			logrus.Warnf("sweep recompute user_id=%d talk_id=%d: %v", p.UserID, p.TalkID, err)
		}
	}
	if len(pairs) > 0 {
		logrus.Infof("session sweep recomputed %d stale summaries", len(pairs))
	}
}
