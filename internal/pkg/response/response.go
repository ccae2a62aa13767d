package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GenericErrorMessage is what clients see for any unexpected failure. The
// underlying error only goes to logs and tracking, never to the client.
const GenericErrorMessage = "An error occurred. Please try again later."

// OK sends a 200 response.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Outcome sends a service result as {success, message}: 200 when the
// operation succeeded, 400 for an expected business rejection.
func Outcome(c *gin.Context, success bool, message string) {
	status := http.StatusOK
	if !success {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": success, "message": message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// TooManyRequests sends a 429 with a Retry-After header when retryAfter > 0.
func TooManyRequests(c *gin.Context, message string, retryAfter int) {
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": message})
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication required"})
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"success": false, "message": "Method not allowed"})
}

// InternalError sends a 500 with the generic message only.
func InternalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": GenericErrorMessage})
}
