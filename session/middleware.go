package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	CookieName = "sessionid"
	contextKey = "session"
)

type Options struct {
	TTL    time.Duration
	Secure bool
	Logger zerolog.Logger
}

// Middleware loads the visitor session before the handler and writes it
// back afterwards when it was modified. The cookie is issued up front
// because headers are flushed with the first body write.
func Middleware(store Store, opts Options) gin.HandlerFunc {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	return func(c *gin.Context) {
		cookie, _ := c.Cookie(CookieName)
		sess, err := Load(c.Request.Context(), store, cookie)
		if err != nil {
			opts.Logger.Error().Err(err).Msg("failed to load session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Session unavailable"})
			c.Abort()
			return
		}

		if sess.IsNew() {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     CookieName,
				Value:    sess.ID(),
				Path:     "/",
				MaxAge:   int(opts.TTL.Seconds()),
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c.Set(contextKey, sess)
		c.Next()

		if err := sess.Save(c.Request.Context(), store, opts.TTL); err != nil {
			opts.Logger.Error().Err(err).Str("session_id", sess.ID()).Msg("failed to save session")
		}
	}
}

// FromContext returns the request session. Handlers mounted without the
// middleware get a throwaway session.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	sess := New()
	c.Set(contextKey, sess)
	return sess
}
