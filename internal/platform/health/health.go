package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const checkTimeout = 5 * time.Second

// Info describes the running service.
type Info struct {
	Service     string
	Version     string
	Environment string
}

// Checker reports whether one dependency of the service is usable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckFunc adapts fn to a Checker named name.
func CheckFunc(name string, fn func(ctx context.Context) error) Checker {
	return checkFunc{name: name, fn: fn}
}

// TCPCheck reports whether something accepts connections on addr.
func TCPCheck(name string, addr func() string) Checker {
	return CheckFunc(name, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr())
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// Response is the body of GET /health.
type Response struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Handler returns the health check endpoint. It answers 200 "healthy"
// when every checker passes and 503 "unhealthy" otherwise.
func Handler(info Info, checks ...Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
		defer cancel()

		resp := Response{
			Status:      "healthy",
			Timestamp:   time.Now().UTC(),
			Service:     info.Service,
			Version:     info.Version,
			Environment: info.Environment,
		}
		status := http.StatusOK

		for _, chk := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := chk.Check(ctx); err != nil {
				resp.Checks[chk.Name()] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[chk.Name()] = "ok"
		}

		return c.JSON(status, resp)
	}
}
