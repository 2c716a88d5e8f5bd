package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	httperr "github.com/bookrelay-lab/bookrelay/internal/core/errors"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidQuery  = "Invalid query parameters"
	msgUnsupported   = "Unsupported period"
	msgQueryFailed   = "Failed to query dashboard"
	msgMissingParams = "hotel_id, period and year are required"
)

// RegisterRoutes registers the dashboard routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/dashboard", s.DashboardHandler)
}

// DashboardHandler handles GET /api/dashboard?hotel_id=&period=&year=.
func (s *Service) DashboardHandler(c *gin.Context) {
	hotelID, year, period, err := parseDashboardQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   msgInvalidQuery,
			Details:   err.Error(),
		})
		return
	}

	view, err := s.Dashboard(c.Request.Context(), hotelID, period, year)
	if err != nil {
		if errors.Is(err, ErrUnsupportedPeriod) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnsupportedPeriodError,
				Message:   msgUnsupported,
				Details:   err.Error(),
			})
			return
		}
		slog.Error("Failed to build dashboard", "error", err, "hotel_id", hotelID, "year", year)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgQueryFailed,
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

func parseDashboardQuery(c *gin.Context) (hotelID int64, year int, period string, err error) {
	rawHotel := c.Query("hotel_id")
	rawYear := c.Query("year")
	period = c.Query("period")
	if rawHotel == "" || rawYear == "" || period == "" {
		return 0, 0, "", errors.New(msgMissingParams)
	}

	hotelID, err = strconv.ParseInt(rawHotel, 10, 64)
	if err != nil {
		return 0, 0, "", err
	}

	year, err = strconv.Atoi(rawYear)
	if err != nil {
		return 0, 0, "", err
	}

	return hotelID, year, period, nil
}
