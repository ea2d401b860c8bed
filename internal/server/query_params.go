package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

// queryInt reads an optional integer query value. A malformed value is a
// validation error on that field.
func queryInt(c *gin.Context, field string) (int, error) {
	parsed, err := parseOptionalInt(c.Query(field))
	if err != nil {
		return 0, newValidationError(field, "invalid_number", "must be a number")
	}
	return parsed, nil
}
