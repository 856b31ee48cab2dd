package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luoshen/linkmate/ai/agent"
	"github.com/luoshen/linkmate/ai/stats"
	"github.com/luoshen/linkmate/internal/profile"
)

type fakeScheduler struct {
	lastRequest agent.Request
	response    *agent.Response
}

func (f *fakeScheduler) Process(_ context.Context, req agent.Request) *agent.Response {
	f.lastRequest = req
	return f.response
}

func newTestService(scheduler ConversationProcessor) (*echo.Echo, *APIV1Service) {
	e := echo.New()
	service := NewAPIV1Service(&profile.Profile{Mode: "dev"}, scheduler, stats.New())
	service.Register(e)
	return e, service
}

func TestConversation(t *testing.T) {
	scheduler := &fakeScheduler{response: &agent.Response{
		Type:      agent.TypeChatReply,
		RequestID: "req-1",
		Message:   "hello",
	}}
	e, _ := newTestService(scheduler)

	body := `{"message": "hi", "user_id": "u1", "limit": 5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/conversation", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var decoded agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, agent.TypeChatReply, decoded.Type)
	assert.Equal(t, "req-1", decoded.RequestID)

	assert.Equal(t, "hi", scheduler.lastRequest.Message)
	assert.Equal(t, "u1", scheduler.lastRequest.UserID)
	assert.Equal(t, 5, scheduler.lastRequest.Limit)
}

func TestConversationRejectsEmptyMessage(t *testing.T) {
	e, _ := newTestService(&fakeScheduler{response: &agent.Response{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/conversation", strings.NewReader(`{"message": "   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationRejectsMalformedBody(t *testing.T) {
	e, _ := newTestService(&fakeScheduler{response: &agent.Response{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/conversation", strings.NewReader(`{not json`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	e, service := newTestService(&fakeScheduler{response: &agent.Response{}})
	service.Counters.RecordRequest()
	service.Counters.RecordLLMCall()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot stats.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.LLMCalls)
}
