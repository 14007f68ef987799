package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/services"
)

type TimelineHandler struct {
	timelineService services.TimelineService
}

func NewTimelineHandler(timelineService services.TimelineService) *TimelineHandler {
	return &TimelineHandler{timelineService: timelineService}
}

func (th *TimelineHandler) Query(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing request identity"))
		return
	}
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid persona id"))
		return
	}

	q := repos.TimelineQuery{
		EventType: c.Query("event_type"),
		Category:  c.Query("category"),
	}
	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid start_date"))
			return
		}
		q.StartDate = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid end_date"))
			return
		}
		q.EndDate = &t
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			q.Limit = n
		}
	}

	events, err := th.timelineService.Query(c.Request.Context(), rd.UserID, personaID, q)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, events)
}
