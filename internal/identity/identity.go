// Package identity resolves the caller of each request: a verified JWT subject
// in production, or an anonymous per-device identity in development.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AnonCookieName        = "coach_anon_id"
	SessionHeaderName     = "X-Coach-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
	canChatKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the client session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// CanChatFromContext reports whether the caller holds the chat capability.
func CanChatFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(canChatKey).(bool)
	return v
}

// WithUser returns a context carrying an already-authorized identity. It is used
// by non-HTTP entry points such as the CLI.
func WithUser(ctx context.Context, userID, sessionID string, canChat bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
	return context.WithValue(ctx, canChatKey, canChat)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		// Browsers cannot set headers on WebSocket upgrades.
		return r.URL.Query().Get("access_token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware injects the caller identity and per-request session ID. With a
// verifier every request must carry a valid bearer token; without one an
// anonymous per-device cookie identity is used and the chat capability granted.
func Middleware(verifier *Verifier, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				userID  string
				canChat bool
			)

			if verifier != nil {
				principal, err := verifier.Verify(bearerToken(r))
				if err != nil {
					slog.Debug("rejected bearer token", "error", err, "ip", IPFromRequest(r))
					http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
					return
				}
				userID = principal.Subject
				canChat = principal.CanChat
			} else {
				id, err := getOrCreateAnonID(w, r, isDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
				userID = id
				canChat = true
			}

			ctx := WithUser(r.Context(), userID, sessionIDFromRequest(r), canChat)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireChat rejects callers without the chat capability.
func RequireChat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !CanChatFromContext(r.Context()) {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
