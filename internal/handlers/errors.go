package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/adherence"
	"theralink-server/internal/service"
	"theralink-server/internal/utils"
)

// maxHorizonDays caps the schedule query parameter.
const maxHorizonDays = 90

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		verr *service.ValidationError
		nf   *service.NotFoundError
		serr *service.StorageError
	)
	switch {
	case errors.As(err, &verr):
		utils.BadRequest(c, verr.Error())
	case errors.As(err, &nf):
		utils.NotFound(c, nf.Error())
	case errors.Is(err, context.DeadlineExceeded):
		utils.GatewayTimeout(c, "request processing exceeded the allowed time limit")
	case errors.As(err, &serr):
		_ = c.Error(err)
		utils.ServiceUnavailable(c, "Storage temporarily unavailable, please retry")
	default:
		_ = c.Error(err)
		utils.InternalServerError(c, "Unexpected error")
	}
}

// dateQuery parses the optional ?date=YYYY-MM-DD parameter. It writes a 400
// and returns false when the value is malformed.
func dateQuery(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return nil, true
	}
	d, err := adherence.ParseDate(raw)
	if err != nil {
		utils.BadRequest(c, "Invalid date, expected YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}

// horizonQuery parses the optional ?horizon= parameter.
func horizonQuery(c *gin.Context, fallback int) (int, bool) {
	raw := c.Query("horizon")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxHorizonDays {
		utils.BadRequest(c, "Invalid horizon, expected a number of days between 1 and "+strconv.Itoa(maxHorizonDays))
		return 0, false
	}
	return n, true
}
