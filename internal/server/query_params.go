package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// queryFlag reads an optional boolean query flag. Absent means false.
func queryFlag(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	on, err := strconv.ParseBool(raw)
	if err != nil {
		return false, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return on, nil
}

// queryLimit reads a positive row limit, falling back to def when absent.
func queryLimit(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return n, nil
}
