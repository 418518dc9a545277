package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const HeaderCronSecret = "X-Cron-Secret"

// RequireCronSecret guards operational endpoints such as the reconciliation
// trigger. The secret comes from config; an empty configured secret disables
// the endpoint entirely rather than leaving it open.
func RequireCronSecret(secret func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := secret()
		if want == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "cron endpoint disabled",
				"request_id": GetRequestID(c),
			})
			return
		}

		got := c.GetHeader(HeaderCronSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "invalid cron secret",
				"request_id": GetRequestID(c),
			})
			return
		}

		c.Next()
	}
}
