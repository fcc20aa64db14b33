package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/repository"
	"github.com/CUknot/roomchat/utils"
	"github.com/gin-gonic/gin"
)

const (
	userKey = "user"

	LoginRedirect       = "/api/auth/login"
	UnconfirmedRedirect = "/api/auth/unconfirmed"
)

// JWTAuth identifies the caller from a bearer token, or from the token
// query parameter for websocket upgrades. Requests without a token go on
// anonymously; a bad token is rejected.
func JWTAuth(signer *utils.TokenSigner, store *repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, ok := signer.ParseToken(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "redirect": LoginRedirect})
			return
		}
		user, err := store.FindUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "redirect": LoginRedirect})
			return
		}

		if err := store.TouchUser(c.Request.Context(), user.ID); err != nil {
			log.Printf("Error updating last seen for user %d: %v", user.ID, err)
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// CurrentUser returns the authenticated caller, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// RequireAuth rejects anonymous callers.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "redirect": LoginRedirect})
			return
		}
		c.Next()
	}
}

// RequireConfirmed sends callers with an unconfirmed account to the
// confirmation page, except on account routes and the language switch.
func RequireConfirmed() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user.IsAuthenticated() && !user.Confirmed && !confirmationExempt(c.Request.URL.Path) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unconfirmed", "redirect": UnconfirmedRedirect})
			return
		}
		c.Next()
	}
}

func confirmationExempt(path string) bool {
	return strings.HasPrefix(path, "/api/auth/") || path == "/api/language"
}
