package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorCtxKey = "carbonledger_actor"

// RequireActor returns a Gin middleware that authenticates the request and
// injects the resulting Actor into the context.
//
// With a non-nil verifier it requires a Bearer token. With a nil verifier it
// runs in development mode and reads X-Actor-ID / X-Actor-Role headers
// directly, aborting if either is absent.
func RequireActor(verifier *TokenVerifier) gin.HandlerFunc {
	if verifier == nil {
		return func(c *gin.Context) {
			actor := Actor{
				ID:   c.GetHeader("X-Actor-ID"),
				Role: c.GetHeader("X-Actor-Role"),
			}
			if actor.ID == "" || actor.Role == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor headers required"})
				return
			}
			c.Set(actorCtxKey, actor)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		actor, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorCtxKey, actor)
		c.Next()
	}
}

// ActorFromCtx returns the Actor injected by RequireActor, or false if the
// request was not authenticated.
func ActorFromCtx(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorCtxKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
