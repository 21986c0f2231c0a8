package middlewares

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards the management surface (events, tickets, coupons)
// with a shared key supplied in X-Api-Key. Comparison is constant time.
func APIKeyMiddleware(ctx *gin.Context) {
	key := ctx.GetHeader("X-Api-Key")
	if key == "" {
		err := errors.New("missing api key header")
		log.Printf("Check failed: %s\n", err.Error())
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	expected := os.Getenv("MANAGEMENT_API_KEY")
	if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
}
