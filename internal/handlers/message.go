package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"im-message-service/internal/middleware"
	"im-message-service/internal/models"
	"im-message-service/internal/repositories"
	"im-message-service/internal/service"
)

// MessageHandler exposes the message-exchange operations over REST.
type MessageHandler struct {
	svc service.MessageService
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(svc service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// Register mounts the message routes on the given group.
func (h *MessageHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/message/send", h.Send)
	rg.POST("/message/records", h.Records)
	rg.POST("/message/history-records", h.HistoryRecords)
	rg.POST("/message/forward-records", h.ForwardRecords)
	rg.POST("/message/delete", h.Delete)
	rg.POST("/message/revoke", h.Revoke)
}

// msgIDList accepts message id arrays whose elements are strings or integers;
// older clients sent numeric ids.
type msgIDList []string

func (l *msgIDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = (*l)[:0]
	for _, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			*l = append(*l, s)
			continue
		}
		var n uint64
		if err := json.Unmarshal(el, &n); err == nil {
			*l = append(*l, strconv.FormatUint(n, 10))
		}
	}
	return nil
}

type sendRequest struct {
	MsgID    string          `json:"msg_id"`
	QuoteID  string          `json:"quote_id"`
	TalkMode int16           `json:"talk_mode"`
	ToFromID int64           `json:"to_from_id"`
	Type     string          `json:"type"`
	Body     json.RawMessage `json:"body"`
}

// Send persists one message and returns its outbound record.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msgType, ok := models.MsgTypeFromName(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return
	}

	in := service.SendInput{
		SenderID: middleware.UserID(c),
		TalkMode: req.TalkMode,
		ToFromID: req.ToFromID,
		MsgType:  msgType,
		QuoteID:  req.QuoteID,
		MsgID:    req.MsgID,
	}
	if msgType == models.MsgTypeText {
		var body models.TextExtra
		if err := json.Unmarshal(req.Body, &body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
			return
		}
		in.Text = body.Content
	} else {
		in.Extra = req.Body
	}

	rec, err := h.svc.Send(c.Request.Context(), in)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type recordsRequest struct {
	TalkMode int16  `json:"talk_mode"`
	ToFromID int64  `json:"to_from_id"`
	Cursor   int64  `json:"cursor"`
	Limit    int    `json:"limit"`
	MsgType  string `json:"msg_type"`
}

// Records returns one descending page of a talk.
func (h *MessageHandler) Records(c *gin.Context) {
	var req recordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	page, err := h.svc.LoadRecords(c.Request.Context(),
		middleware.UserID(c), req.TalkMode, req.ToFromID, req.Cursor, req.Limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HistoryRecords is Records narrowed to one message type.
func (h *MessageHandler) HistoryRecords(c *gin.Context) {
	var req recordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var msgType int16
	if req.MsgType != "" {
		var ok bool
		if msgType, ok = models.MsgTypeFromName(req.MsgType); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
			return
		}
	}
	page, err := h.svc.LoadHistoryRecords(c.Request.Context(),
		middleware.UserID(c), req.TalkMode, req.ToFromID, msgType, req.Cursor, req.Limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type forwardRecordsRequest struct {
	TalkMode int16     `json:"talk_mode"`
	ToFromID int64     `json:"to_from_id"`
	MsgIDs   msgIDList `json:"msg_ids"`
}

// ForwardRecords resolves the source records of a forward message.
func (h *MessageHandler) ForwardRecords(c *gin.Context) {
	var req forwardRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	items, err := h.svc.LoadForwardRecords(c.Request.Context(), middleware.UserID(c), req.MsgIDs)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type deleteRequest struct {
	TalkMode int16     `json:"talk_mode"`
	ToFromID int64     `json:"to_from_id"`
	MsgIDs   msgIDList `json:"msg_ids"`
}

// Delete hides messages from the calling user only.
func (h *MessageHandler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.svc.DeleteForUser(c.Request.Context(),
		middleware.UserID(c), req.TalkMode, req.ToFromID, req.MsgIDs)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type revokeRequest struct {
	TalkMode int16  `json:"talk_mode"`
	ToFromID int64  `json:"to_from_id"`
	MsgID    string `json:"msg_id"`
}

// Revoke globally retracts one of the caller's own messages.
func (h *MessageHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.svc.Revoke(c.Request.Context(),
		middleware.UserID(c), req.TalkMode, req.ToFromID, req.MsgID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTalkMode),
		errors.Is(err, service.ErrUnknownMsgType),
		errors.Is(err, service.ErrMalformedMsgID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrDuplicateMessage):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logrus.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
