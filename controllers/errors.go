package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-dashboard/interfaces"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) (int, string) {
	var (
		validationErr *interfaces.ValidationError
		notFoundErr   *interfaces.NotFoundError
		rangeErr      *interfaces.RangeError
		authErr       *interfaces.AuthError
		upstreamErr   *interfaces.UpstreamError
		transportErr  *interfaces.TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "Invalid request"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "Option contract not found"
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest, "Requested range exceeds available options"
	case errors.As(err, &authErr):
		if authErr.Inactive {
			return http.StatusBadRequest, "Inactive user"
		}
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.As(err, &upstreamErr):
		if upstreamErr.Status >= 400 && upstreamErr.Status <= 599 {
			return upstreamErr.Status, "Upstream API error"
		}
		return http.StatusBadGateway, "Upstream API error"
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return http.StatusGatewayTimeout, "Upstream API timed out"
		}
		return http.StatusInternalServerError, "Upstream API unreachable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// respondError writes err in the {"error", "details"} shape with its mapped status
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status, message := statusFor(err)

	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": status,
		}).WithError(err).Error("Request failed")
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// bindError reports a body or parameter that could not be decoded
func bindError(c *gin.Context, field string, err error) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "Invalid request",
		"details": (&interfaces.ValidationError{Field: field, Reason: err.Error()}).Error(),
	})
}
