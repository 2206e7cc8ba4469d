package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raine/carhunt/internal/inventory"
	"github.com/raine/carhunt/internal/testdrive"
	"github.com/rs/zerolog/log"
)

func successResponse(data any) gin.H {
	return gin.H{
		"success": true,
		"data":    data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"success": false,
		"error":   message,
	}
}

// handleError maps service errors to status codes. Unknown errors are logged
// and hidden from the client.
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inventory.ErrInvalidInput), errors.Is(err, testdrive.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, testdrive.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, testdrive.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, testdrive.ErrSlotTaken):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		log.Error().Err(err).Str("requestID", requestID(c)).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}
