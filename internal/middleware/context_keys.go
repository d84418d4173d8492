package middleware

import "github.com/gin-gonic/gin"

const (
	// actorKey holds the authenticated subject.
	actorKey = contextKey("actor")

	// failureCauseKey holds the taxonomy code of a failed request so the
	// idempotency middleware can record it.
	failureCauseKey = contextKey("failureCause")
)

// GetActorFromContext retrieves the authenticated subject from the Gin context.
// It returns the subject and a boolean indicating if it was found.
func GetActorFromContext(c *gin.Context) (string, bool) {
	actorVal, exists := c.Get(string(actorKey))
	if !exists {
		// check in the request context as well
		if v, ok := c.Request.Context().Value(actorKey).(string); ok {
			return v, true
		}
		return "", false
	}

	actor, ok := actorVal.(string)
	if !ok {
		return "", false
	}
	return actor, true
}

// SetFailureCause records why the current request failed.
func SetFailureCause(c *gin.Context, cause string) {
	c.Set(string(failureCauseKey), cause)
}

// FailureCause returns the cause set by SetFailureCause.
func FailureCause(c *gin.Context) (string, bool) {
	v, ok := c.Get(string(failureCauseKey))
	if !ok {
		return "", false
	}
	cause, ok := v.(string)
	return cause, ok && cause != ""
}
