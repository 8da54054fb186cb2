package handlers

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"fortunet/internal/services"
)

// uintParam parses a numeric path parameter.
func uintParam(c echo.Context, name string) (uint, error) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", services.ErrInvalidInput, name)
	}
	return uint(value), nil
}
