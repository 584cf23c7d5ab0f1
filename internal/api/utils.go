package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// queryInt parses an integer query parameter, returning the fallback on a
// missing or malformed value.
func queryInt(ctx echo.Context, name string, fallback int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// paramID parses the :id path parameter as an unsigned integer.
func paramID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
