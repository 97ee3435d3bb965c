package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ctxKeyOwner ctxKey = "owner"

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if !strings.HasPrefix(h, "Bearer ") && !strings.HasPrefix(h, "bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[len("Bearer "):]), true
}

// subjectFromToken verifies an HS256 token and returns its sub claim as a
// user id. exp and nbf are enforced by the parser when present.
func subjectFromToken(tok string, secret []byte) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

// owner resolves the user every request acts for. With a JWT secret the
// bearer token's subject is authoritative; otherwise user_id is required.
func (s *Server) owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID uuid.UUID
		if s.jwtSecret != nil {
			tok, ok := parseBearerToken(r)
			if !ok {
				writeErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
				return
			}
			id, err := subjectFromToken(tok, s.jwtSecret)
			if err != nil || id == uuid.Nil {
				writeErr(w, http.StatusUnauthorized, "invalid token", "unauthorized")
				return
			}
			userID = id
		} else {
			raw := r.URL.Query().Get("user_id")
			if raw == "" {
				badRequest(w, "user_id is required")
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				badRequest(w, "invalid user_id")
				return
			}
			userID = id
		}
		ctx := context.WithValue(r.Context(), ctxKeyOwner, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerOf returns the user resolved by the owner middleware.
func ownerOf(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyOwner).(uuid.UUID)
	return id
}
