package ingestion

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
	httperr "github.com/bookrelay-lab/bookrelay/internal/core/errors"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidJSON   = "Invalid JSON body"
	msgRelayFailed   = "Failed to relay event to broker"
	msgInvalidFilter = "Invalid query parameters"
)

// IngestHandler handles POST /api/events.
//
// A 202 response means the event is durably queued, not durably stored: the
// consumer persists it asynchronously, and the caller gets the completed
// event back without waiting for that.
func (s *Service) IngestHandler(c *gin.Context) {
	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   msgInvalidJSON,
			Details:   err.Error(),
		})
		return
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("Event validation failed", "error", err, "hotel_id", evt.HotelID)
		c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
			ErrorType: httperr.HttpValidationError,
			Message:   err.Error(),
		})
		return
	}

	evt.Canonicalize(s.nowFn())

	body, err := json.Marshal(&evt)
	if err != nil {
		slog.Error("Failed to serialize event", "error", err, "event_id", evt.ID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to serialize event",
		})
		return
	}

	correlationID := strconv.FormatInt(evt.ID, 10)
	if err := s.publisher.Publish(c.Request.Context(), body, correlationID); err != nil {
		slog.Error("Failed to publish event", "error", err, "event_id", evt.ID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpRelayError,
			Message:   msgRelayFailed,
		})
		return
	}

	slog.Info("Accepted event",
		"event_id", evt.ID,
		"hotel_id", evt.HotelID,
		"night_of_stay", evt.NightOfStay.String(),
	)
	c.JSON(http.StatusAccepted, evt)
}

// ListEventsHandler handles GET /api/events with the filter parameters
// hotel_id, updated_from/to, status, room_id and night_of_stay_from/to.
// Results are ascending by timestamp.
func (s *Service) ListEventsHandler(c *gin.Context) {
	filter, err := parseEventFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   msgInvalidFilter,
			Details:   err.Error(),
		})
		return
	}

	events, err := s.store.QueryEvents(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Failed to query events", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query events",
		})
		return
	}

	if events == nil {
		events = []*v1.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func parseEventFilter(c *gin.Context) (v1.EventFilter, error) {
	var filter v1.EventFilter

	if raw := c.Query("hotel_id"); raw != "" {
		hotelID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.HotelID = hotelID
	}

	if raw := c.Query("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	filter.RoomID = c.Query("room_id")

	if raw := c.Query("updated_from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.UpdatedFrom = ts
	}

	if raw := c.Query("updated_to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.UpdatedTo = ts
	}

	if raw := c.Query("night_of_stay_from"); raw != "" {
		d, err := v1.ParseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.NightOfStayFrom = d
	}

	if raw := c.Query("night_of_stay_to"); raw != "" {
		d, err := v1.ParseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.NightOfStayTo = d
	}

	return filter, nil
}
