package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wagate/pkg/errors"
	"github.com/wagate/pkg/state"
	"gorm.io/gorm"
)

// All endpoints answer with the {success, data?, error?} envelope.
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"success": false, "error": err.Error()}

	if app, isApp := apperrors.AsAppError(err); isApp {
		switch app.Code {
		case apperrors.CodeInvalidArgument:
			status = http.StatusBadRequest
		case apperrors.CodeNotFound:
			status = http.StatusNotFound
		case apperrors.CodeAlreadyExists:
			status = http.StatusConflict
		case apperrors.CodeUnauthenticated:
			status = http.StatusUnauthorized
		case apperrors.CodePermissionDenied:
			status = http.StatusForbidden
		case apperrors.CodeFailedPrecondition:
			status = http.StatusConflict
		case apperrors.CodeRateLimited:
			status = http.StatusTooManyRequests
			if app.RetryAfterMs > 0 {
				body["retry_after_ms"] = app.RetryAfterMs
				c.Header("Retry-After", strconv.FormatInt((app.RetryAfterMs+999)/1000, 10))
			}
		case apperrors.CodeDependencyFailed:
			status = http.StatusBadGateway
		case apperrors.CodeTransientTransport, apperrors.CodeFatalTransport:
			status = http.StatusServiceUnavailable
		}
	} else if err == gorm.ErrRecordNotFound {
		status = http.StatusNotFound
	}

	c.JSON(status, body)
}

func failBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func currentUser(c *gin.Context) uint {
	return state.CurrentUser(c)
}
