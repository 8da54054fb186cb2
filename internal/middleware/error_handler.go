package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"fortunet/internal/services"
)

// CustomErrorHandler maps service errors to JSON error responses.
// Every error body has the shape {"error": message}; internal details
// and stack traces are logged, never returned to the caller.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, services.ErrGatewayUnavailable):
		code = http.StatusBadGateway
		message = "Payment gateway is unavailable, please try again"
	case errors.Is(err, services.ErrRouterUnavailable):
		code = http.StatusBadGateway
		message = "Router is unreachable, please try again"
	case errors.Is(err, services.ErrProvisioningFailed):
		code = http.StatusBadGateway
		message = "Failed to apply package to the router"
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				message = msg
			} else if code == http.StatusNotFound {
				message = "Endpoint not found"
			}
		}
	}

	c.Logger().Error(err)

	if jsonErr := c.JSON(code, map[string]string{"error": message}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
