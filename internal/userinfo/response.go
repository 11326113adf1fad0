package userinfo

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"github.com/LCOGT/photonranch-userinfo/internal/auth"
	"github.com/LCOGT/photonranch-userinfo/internal/domain"
)

// Plain-text response bodies.
const (
	MsgUserNotFound     = "User not found."
	MsgProtectedField   = "Cannot update time_amount. Please use /add-time or /deduct-time."
	MsgNotEnoughTime    = "Not enough available time."
	MsgInternalError    = "Internal server error."
	MsgUnauthorized     = "Unauthorized."
	MsgForbidden        = "Forbidden."
	MsgRouteNotFound    = "Not found."
	MsgMethodNotAllowed = "Method not allowed."
	MsgInvalidRequest   = "Invalid request."
)

func corsHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":      "*",
		"Access-Control-Allow-Credentials": "true",
	}
}

func respond(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    corsHeaders(),
		Body:       body,
	}
}

func respondJSON(logger *logrus.Entry, status int, v any) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.WithField("event", "response_encode_error").WithError(err).Error("failed to encode response body")
		return respond(http.StatusInternalServerError, MsgInternalError)
	}

	resp := respond(status, string(payload))
	resp.Headers["Content-Type"] = "application/json"
	return resp
}

func preflight(method string) events.APIGatewayProxyResponse {
	resp := respond(http.StatusOK, "")
	resp.Headers["Access-Control-Allow-Methods"] = method + ", " + http.MethodOptions
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type, Authorization"
	return resp
}

// requestError is a malformed-input failure carrying a client-facing reason.
type requestError struct {
	reason string
}

func (e *requestError) Error() string {
	return domain.ErrInvalidRequest.Error() + ": " + e.reason
}

func (e *requestError) Unwrap() error {
	return domain.ErrInvalidRequest
}

func invalid(reason string) error {
	return &requestError{reason: reason}
}

// failure maps a handler error onto a status code and plain-text body.
// Backend faults are logged in full and reported generically.
func failure(logger *logrus.Entry, op string, err error) events.APIGatewayProxyResponse {
	var (
		status int
		body   string
	)

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		status, body = http.StatusUnauthorized, MsgUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		status, body = http.StatusForbidden, MsgForbidden
	case errors.Is(err, domain.ErrProtectedField):
		status, body = http.StatusForbidden, MsgProtectedField
	case errors.Is(err, domain.ErrNotFound):
		status, body = http.StatusNotFound, MsgUserNotFound
	case errors.Is(err, domain.ErrInsufficientTime):
		status, body = http.StatusBadRequest, MsgNotEnoughTime
	case errors.Is(err, domain.ErrInvalidRequest):
		status, body = http.StatusBadRequest, MsgInvalidRequest
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			body = "Invalid request: " + reqErr.reason
		}
	default:
		logger.WithField("status", http.StatusInternalServerError).WithError(err).Error(op + " failed")
		return respond(http.StatusInternalServerError, MsgInternalError)
	}

	logger.WithFields(logrus.Fields{
		"status": status,
		"reason": err.Error(),
	}).Warn(op + " rejected")

	return respond(status, body)
}
