package push

import (
	"context"

	"github.com/sirupsen/logrus"

	"im-message-service/internal/models"
	"im-message-service/internal/observability"
	"im-message-service/internal/rabbitmq"
	"im-message-service/internal/ws"
)

// Event names clients subscribe to.
const (
	EventMessage       = "im.message"
	EventSessionUpdate = "im.session.update"
)

// Sink accepts post-commit push events. The message core only consumes this
// contract; delivery guarantees are at-least-once, best-effort.
type Sink interface {
	PushToTalk(ctx context.Context, talkMode int16, toFromID, fromID int64, event string, payload any)
	PushToUser(ctx context.Context, userID int64, event string, payload any)
}

// Envelope is the shape published to the notification pipeline so other
// gateway instances can replay the push to their own connections.
type Envelope struct {
	Event    string `json:"event"`
	TalkMode int16  `json:"talk_mode,omitempty"`
	ToFromID int64  `json:"to_from_id,omitempty"`
	FromID   int64  `json:"from_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Payload  any    `json:"payload"`
}

// GatewaySink fans events out to locally connected devices through the hub
// and to the notification pipeline through AMQP.
type GatewaySink struct {
	hub       *ws.Hub
	publisher rabbitmq.Publisher
}

// NewGatewaySink constructs a GatewaySink.
func NewGatewaySink(hub *ws.Hub, publisher rabbitmq.Publisher) *GatewaySink {
	return &GatewaySink{hub: hub, publisher: publisher}
}

// PushToTalk delivers an event to every participant of a conversation: the
// counterpart plus the sender's other device sessions for direct talks, the
// group room for group talks.
func (s *GatewaySink) PushToTalk(ctx context.Context, talkMode int16, toFromID, fromID int64, event string, payload any) {
	if s.hub != nil {
		if talkMode == models.TalkModeGroup {
			s.hub.PushToGroup(toFromID, event, payload)
		} else {
			s.hub.PushToUser(toFromID, event, payload)
			s.hub.PushToUser(fromID, event, payload)
		}
	}
	s.publish(ctx, event, Envelope{
		Event:    event,
		TalkMode: talkMode,
		ToFromID: toFromID,
		FromID:   fromID,
		Payload:  payload,
	})
}

// PushToUser delivers an event to one user's device sessions only.
func (s *GatewaySink) PushToUser(ctx context.Context, userID int64, event string, payload any) {
	if s.hub != nil {
		s.hub.PushToUser(userID, event, payload)
	}
	s.publish(ctx, event, Envelope{
		Event:   event,
		UserID:  userID,
		Payload: payload,
	})
}

func (s *GatewaySink) publish(ctx context.Context, routingKey string, env Envelope) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, env); err != nil {
		observability.IncAMQPPublishError()
		logrus.Warnf("push publish failed event=%s: %v", env.Event, err)
	}
}
