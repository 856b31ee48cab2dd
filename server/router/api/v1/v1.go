// Package v1 exposes the conversation agent over REST.
package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/luoshen/linkmate/ai/agent"
	"github.com/luoshen/linkmate/ai/stats"
	"github.com/luoshen/linkmate/internal/profile"
)

// ConversationProcessor is the slice of the scheduler the transport needs.
type ConversationProcessor interface {
	Process(ctx context.Context, req agent.Request) *agent.Response
}

// APIV1Service holds the handlers for /api/v1.
type APIV1Service struct {
	Profile   *profile.Profile
	Scheduler ConversationProcessor
	Counters  *stats.Counters
}

// NewAPIV1Service creates the v1 REST service.
func NewAPIV1Service(instanceProfile *profile.Profile, scheduler ConversationProcessor, counters *stats.Counters) *APIV1Service {
	return &APIV1Service{
		Profile:   instanceProfile,
		Scheduler: scheduler,
		Counters:  counters,
	}
}

// Register attaches the v1 routes.
func (s *APIV1Service) Register(e *echo.Echo) {
	group := e.Group("/api/v1")
	group.POST("/agent/conversation", s.Conversation)
	group.GET("/agent/stats", s.GetStats)
}

// Conversation handles one turn. The scheduler owns every failure mode past
// request decoding, so this handler only rejects malformed or empty input.
func (s *APIV1Service) Conversation(c echo.Context) error {
	var req agent.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	resp := s.Scheduler.Process(c.Request().Context(), req)
	return c.JSON(http.StatusOK, resp)
}

// GetStats returns the process-wide counter snapshot.
func (s *APIV1Service) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Counters.Snapshot())
}
