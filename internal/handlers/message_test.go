package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"im-message-service/internal/handlers"
	"im-message-service/internal/mocks"
	"im-message-service/internal/models"
	"im-message-service/internal/repositories"
	"im-message-service/internal/service"
)

func setupRouter(svc service.MessageService, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
	})
	handlers.NewMessageHandler(svc).Register(r.Group("/api/v1"))
	return r
}

func doJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendParsesTextBody(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("Send", mock.Anything, service.SendInput{
		SenderID: 7,
		TalkMode: models.TalkModeDirect,
		ToFromID: 8,
		MsgType:  models.MsgTypeText,
		Text:     "hi there",
		QuoteID:  "q1",
	}).Return(models.MessageRecord{MsgID: "aaaa", FromID: 7}, nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/send",
		`{"talk_mode":1,"to_from_id":8,"type":"text","quote_id":"q1","body":{"content":"hi there"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"msg_id":"aaaa"`)
	svc.AssertExpectations(t)
}

func TestSendPassesExtraForMediaTypes(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("Send", mock.Anything, mock.MatchedBy(func(in service.SendInput) bool {
		return in.MsgType == models.MsgTypeImage && string(in.Extra) == `{"url":"x.png"}`
	})).Return(models.MessageRecord{MsgID: "bbbb"}, nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/send",
		`{"talk_mode":1,"to_from_id":8,"type":"image","body":{"url":"x.png"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestSendRejectsUnknownType(t *testing.T) {
	svc := &mocks.MessageService{}

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/send",
		`{"talk_mode":1,"to_from_id":8,"type":"hologram","body":{}}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendMapsValidationErrors(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("Send", mock.Anything, mock.Anything).
		Return(models.MessageRecord{}, service.ErrMalformedMsgID)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/send",
		`{"talk_mode":1,"to_from_id":8,"type":"text","msg_id":"bad","body":{"content":"x"}}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendForeignDuplicateIsConflict(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("Send", mock.Anything, mock.Anything).
		Return(models.MessageRecord{}, repositories.ErrDuplicateMessage)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/send",
		`{"talk_mode":1,"to_from_id":8,"type":"text","body":{"content":"x"}}`)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRecordsReturnsPage(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("LoadRecords", mock.Anything, int64(7), int16(1), int64(8), int64(0), 30).
		Return(models.MessagePage{
			Items:  []models.MessageRecord{{MsgID: "aaaa", Sequence: 5}},
			Cursor: 5,
		}, nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/records",
		`{"talk_mode":1,"to_from_id":8,"cursor":0,"limit":30}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cursor":5`)
	svc.AssertExpectations(t)
}

func TestHistoryRecordsMapsTypeName(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("LoadHistoryRecords", mock.Anything,
		int64(7), int16(2), int64(5), models.MsgTypeFile, int64(0), 0).
		Return(models.MessagePage{Items: []models.MessageRecord{}}, nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/history-records",
		`{"talk_mode":2,"to_from_id":5,"msg_type":"file"}`)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestForwardRecordsAcceptsNumericIDs(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("LoadForwardRecords", mock.Anything, int64(7), []string{"aaaa", "123"}).
		Return([]models.MessageRecord{}, nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/forward-records",
		`{"talk_mode":1,"to_from_id":8,"msg_ids":["aaaa",123]}`)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestDeleteReturnsNoContent(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("DeleteForUser", mock.Anything, int64(7), int16(1), int64(8), []string{"m1"}).
		Return(nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/delete",
		`{"talk_mode":1,"to_from_id":8,"msg_ids":["m1"]}`)

	require.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}

func TestRevokeErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not sender", service.ErrNotSender, http.StatusForbidden},
		{"missing message", repositories.ErrMessageNotFound, http.StatusNotFound},
		{"infrastructure", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mocks.MessageService{}
			svc.On("Revoke", mock.Anything, int64(7), int16(1), int64(8), "m1").
				Return(tc.err)

			w := doJSON(setupRouter(svc, 7), "/api/v1/message/revoke",
				`{"talk_mode":1,"to_from_id":8,"msg_id":"m1"}`)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestRevokeSuccess(t *testing.T) {
	svc := &mocks.MessageService{}
	svc.On("Revoke", mock.Anything, int64(7), int16(1), int64(8), "m1").Return(nil)

	w := doJSON(setupRouter(svc, 7), "/api/v1/message/revoke",
		`{"talk_mode":1,"to_from_id":8,"msg_id":"m1"}`)

	require.Equal(t, http.StatusNoContent, w.Code)
}
