/*
	This file implements signed tile-URL authentication.  A token is an HS256
	JWT carrying the slide id and an expiry; the sign subcommand (or an
	upstream application server) mints tokens, and the tile routes verify
	them.  Health and viewer pages stay public.
*/

package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"

	"github.com/PABannier/WSIStreamer/wsi"
)

// protectedPrefixes lists the route subtrees that require a token when
// authentication is enabled.
var protectedPrefixes = []string{"/tiles/", "/slides"}

type authError struct {
	code    string
	message string
}

func (e authError) Error() string {
	return e.message
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message, Status: status})
}

// SignToken mints a token granting access to one slide until the expiry.
// An empty slide id grants access to listings and any slide.
func SignToken(secret, slideID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"exp": time.Now().Add(ttl).Unix(),
	}
	if slideID != "" {
		claims["slide"] = slideID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}
	return signed, nil
}

// verifyToken checks a token's signature, expiry, and slide claim.
func verifyToken(secret, tokenString, slideID string) *authError {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &authError{code: "token_expired", message: "the signed URL has expired"}
		}
		return &authError{code: "invalid_token", message: "the signed URL token is invalid"}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return &authError{code: "invalid_token", message: "the signed URL token is invalid"}
	}
	if claimed, ok := claims["slide"].(string); ok && slideID != "" && claimed != slideID {
		return &authError{code: "invalid_token", message: "the signed URL token is for a different slide"}
	}
	return nil
}

// checkToken is goji middleware enforcing signed URLs on protected routes.
func (s *Service) checkToken(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if !isProtected(r.URL.Path) {
			h.ServeHTTP(w, r)
			return
		}
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing_token", "a signed URL token is required")
			return
		}
		// Middleware runs before routing, so the slide id comes from the
		// path rather than URL params.
		if authErr := verifyToken(s.config.Auth.SecretKey, tokenString, slideIDFromPath(r.URL.Path)); authErr != nil {
			wsi.Debugf("Rejected token for %s: %s\n", r.URL.Path, authErr.message)
			writeAuthError(w, http.StatusUnauthorized, authErr.code, authErr.message)
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func isProtected(path string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// slideIDFromPath extracts the slide id segment of a protected path, e.g.
// "/tiles/<slide>/0/0/0.jpg" or "/slides/<slide>/metadata".  Listing paths
// have no slide segment and return "".
func slideIDFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "tiles", "slides":
		return parts[1]
	}
	return ""
}
