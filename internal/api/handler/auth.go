package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer  = "liveflow-service"
	sessionClaim = "sid"
	sessionKey   = "session_id"
)

var errMissingSession = errors.New("token carries no session id")

// generateJWT підписує токен з ID сесії браузера
func (h *Handler) generateJWT(sid string) (string, error) {
	claims := jwt.MapClaims{
		sessionClaim: sid,
		"exp":        time.Now().Add(h.TokenTTL).Unix(),
		"iss":        tokenIssuer, // Видавець
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// parseJWT validates raw and returns the session id it carries.
func (h *Handler) parseJWT(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return h.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errMissingSession
	}
	sid, _ := claims[sessionClaim].(string)
	if sid == "" {
		return "", errMissingSession
	}
	return sid, nil
}

// tokenFrom reads the bearer token, falling back to ?token= for browsers
// that cannot set headers on a WebSocket handshake.
func tokenFrom(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// RequireSession rejects requests without a valid session token.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFrom(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}
		sid, err := h.parseJWT(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(sessionKey, sid)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
