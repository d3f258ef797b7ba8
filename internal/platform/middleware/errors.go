package middleware

import (
	"github.com/labstack/echo/v4"
)

// errorResponse is the JSON body written by middleware that rejects a
// request before it reaches a handler.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(c echo.Context, status int, msg string) error {
	if c.Response().Committed {
		return nil
	}
	rid, _ := c.Get(RequestIDKey).(string)
	return c.JSON(status, errorResponse{Error: msg, RequestID: rid})
}
