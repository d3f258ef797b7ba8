package labresult

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/hl7results/gateway/internal/platform/middleware"
)

// SourceHeader identifies the sending system when the source query
// parameter is absent.
const SourceHeader = "X-Source"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the HL7 endpoints on the provided route group.
//
//	POST /api/v1/hl7/process - decode a message, return a summary
//	POST /api/v1/hl7/parse   - decode a message, return the full result
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7/process", h.ProcessMessage)
	g.POST("/hl7/parse", h.ParseMessage)
}

// ProcessMessage handles POST /api/v1/hl7/process.
func (h *Handler) ProcessMessage(c echo.Context) error {
	result, err := h.process(c)
	if err != nil || result == nil {
		return err
	}
	if !result.Success {
		return c.JSON(failureStatus(result.ErrorKind), newFailureResponse(result))
	}
	return c.JSON(http.StatusOK, newProcessSummary(result))
}

// ParseMessage handles POST /api/v1/hl7/parse.
func (h *Handler) ParseMessage(c echo.Context) error {
	result, err := h.process(c)
	if err != nil || result == nil {
		return err
	}
	if !result.Success {
		return c.JSON(failureStatus(result.ErrorKind), newFailureResponse(result))
	}
	return c.JSON(http.StatusOK, parsedMessage{
		Success:     true,
		ID:          result.ID.String(),
		ProcessedAt: result.ProcessedAt,
		Message:     result.Message,
	})
}

// process reads the body and runs the service. A nil result with a nil
// error means a response has already been written.
func (h *Handler) process(c echo.Context) (*ProcessResult, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, c.JSON(http.StatusRequestTimeout, map[string]string{
				"error": "timed out reading request body",
			})
		}
		return nil, c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}
	if len(body) == 0 {
		return nil, c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request body cannot be empty",
		})
	}

	result, err := h.svc.Process(c.Request().Context(), ProcessCommand{
		Message: string(body),
		Source:  requestSource(c),
	})
	if err != nil {
		// Left for the timeout middleware to answer 504.
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled").SetInternal(err)
	}
	return result, nil
}

// requestSource resolves the sender from ?source=, then X-Source.
func requestSource(c echo.Context) string {
	if s := middleware.SanitizeString(c.QueryParam("source")); s != "" {
		return s
	}
	if s := middleware.SanitizeString(c.Request().Header.Get(SourceHeader)); s != "" {
		return s
	}
	return SourceUnknown
}

func failureStatus(kind ErrorKind) int {
	if kind == ErrorKindInternal {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
