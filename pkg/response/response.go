package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The API speaks a flat status envelope: successes are endpoint-shaped with
// "status":"success" at the top level, errors are always
// {"status":"error","message":...}.

// OK sends a 200 response with "status":"success" merged into the payload.
func OK(c *gin.Context, payload gin.H) {
	body := gin.H{"status": "success"}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Err sends an error response with the given HTTP status code.
func Err(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"status": "error", "message": msg})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, msg string) {
	Err(c, http.StatusBadRequest, msg)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	Err(c, http.StatusUnauthorized, msg)
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	Err(c, http.StatusNotFound, msg)
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	Err(c, http.StatusConflict, msg)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	Err(c, http.StatusServiceUnavailable, msg)
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) {
	Err(c, http.StatusInternalServerError, msg)
}
