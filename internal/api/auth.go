package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// errTokenInvalid is returned for a missing, malformed or expired token.
var errTokenInvalid = errors.New("invalid or expired token")

// bearerPrefix precedes the token in the Authorization header.
const bearerPrefix = "Bearer "

// tokenQueryParam carries the token on WebSocket upgrades, where browsers
// cannot set headers.
const tokenQueryParam = "access_token"

// authMiddleware validates HS256 bearer tokens on protected routes.
// With no secret configured the API is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := tokenFromRequest(r)
		if token == "" {
			writeUnauthorized(w, "bearer token is required")
			return
		}

		subject, err := parseToken(token, s.cfg.Auth.JWTSecret)
		if err != nil {
			s.logger.Debug("rejected token", "error", err, "path", r.URL.Path)
			writeUnauthorized(w, errTokenInvalid.Error())
			return
		}

		s.logger.Debug("authenticated request", "subject", subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest extracts the bearer token, or "" if none was sent.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get(tokenQueryParam)
	}
	return ""
}

// parseToken validates signature and expiry and returns the token subject.
func parseToken(tokenString, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid {
		return "", errTokenInvalid
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", errTokenInvalid)
	}
	return claims.Subject, nil
}
