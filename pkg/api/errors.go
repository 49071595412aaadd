package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/opsdesk/dispatch/pkg/limiter"
)

// mapChatError maps turn-processing errors to HTTP error responses.
func mapChatError(err error) *echo.HTTPError {
	if errors.Is(err, limiter.ErrOverloaded) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service is overloaded, please retry shortly")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request timed out, please retry")
	}

	// Unexpected error
	slog.Error("Unexpected chat error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
