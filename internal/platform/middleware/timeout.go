package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout sets a deadline on each request context. The handler runs
// on the request goroutine; when it returns an error caused by the deadline
// the client gets a 504 JSON error. Handlers that never look at the context
// finish normally.
//
// A timeout of zero or less disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout:      timeout,
		ErrorHandler: timeoutErrorHandler,
	})
}

func timeoutErrorHandler(err error, c echo.Context) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return writeError(c, http.StatusGatewayTimeout,
			"request processing exceeded the allowed time limit")
	}
	return err
}
