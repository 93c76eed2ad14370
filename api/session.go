package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aouyang1/portfoliogallery/api/models"
	"github.com/aouyang1/portfoliogallery/auth"
	"github.com/gin-gonic/gin"
)

const (
	sessionCookie        = "gallery_session"
	sessionKey           = "session"
	tokenKey             = "session_token"
	sessionIdleTimeout   = 12 * time.Hour
	sessionSweepInterval = 10 * time.Minute
)

type tokenCtxKey struct{}

func withSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// sessionToken is the browser session behind a request context, or "".
func sessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenCtxKey{}).(string)
	return token
}

func newSessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredSessionCookie() *http.Cookie {
	cookie := newSessionCookie("")
	cookie.MaxAge = -1
	return cookie
}

// withSession attaches the browser's session, creating one when the
// request carries no valid cookie.
func (ws *WebServer) withSession(c *gin.Context) {
	token, _ := c.Cookie(sessionCookie)
	current, session := ws.sessions.GetOrNew(token)
	if current != token {
		http.SetCookie(c.Writer, newSessionCookie(current))
	}
	c.Set(tokenKey, current)
	c.Set(sessionKey, session)
	c.Next()
}

// lookupSession attaches the browser's session only if it already exists.
func (ws *WebServer) lookupSession(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil {
		if session, err := ws.sessions.Get(token); err == nil {
			c.Set(tokenKey, token)
			c.Set(sessionKey, session)
		}
	}
	c.Next()
}

func (ws *WebServer) requireAdmin(c *gin.Context) {
	session, ok := optionalSession(c)
	if !ok || !session.Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Admin login required"})
		return
	}
	c.Next()
}

func sessionFrom(c *gin.Context) *auth.Session {
	return c.MustGet(sessionKey).(*auth.Session)
}

func optionalSession(c *gin.Context) (*auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	return v.(*auth.Session), true
}

func tokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// requestContext carries the session token so notices reach only this browser.
func requestContext(c *gin.Context) context.Context {
	return withSessionToken(c.Request.Context(), tokenFrom(c))
}

func (ws *WebServer) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ws.sessions.Sweep(); n > 0 {
				slog.Info("dropped idle sessions", "count", n, "remaining", ws.sessions.Len())
			}
		}
	}
}
