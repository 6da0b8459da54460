package controllers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"options-dashboard/interfaces"
	"options-dashboard/services"
)

// ActivityController handles activity log endpoints
type ActivityController struct {
	activityLogger *services.ActivityLogger
}

// NewActivityController creates a new activity controller
func NewActivityController(activityLogger *services.ActivityLogger) *ActivityController {
	return &ActivityController{
		activityLogger: activityLogger,
	}
}

// HandleGetCurrentActivity returns the current day's activity log
// GET /activity
func (ac *ActivityController) HandleGetCurrentActivity(c *gin.Context) {
	log, err := ac.activityLogger.GetCurrentLog()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleGetActivityByDate returns the activity log for a YYYY-MM-DD date
// GET /activity/:date
func (ac *ActivityController) HandleGetActivityByDate(c *gin.Context) {
	log, err := ac.activityLogger.GetLogForDate(c.Param("date"))
	if err != nil {
		var validationErr *interfaces.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, os.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleListActivityLogs returns the dates that have an activity log
// GET /activity/logs
func (ac *ActivityController) HandleListActivityLogs(c *gin.Context) {
	dates, err := ac.activityLogger.ListAvailableLogs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dates": dates,
		"count": len(dates),
	})
}
