package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	CtxUserID    ctxKey = "user_id"
	CtxEmail     ctxKey = "email"
	CtxExpiresAt ctxKey = "expires_at"
)

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(CtxUserID).(string)
	return id
}

// Email returns the authenticated email stored by JWTAuth.
func Email(ctx context.Context) string {
	email, _ := ctx.Value(CtxEmail).(string)
	return email
}

// ExpiresAt returns the expiry of the credential that authenticated the request.
func ExpiresAt(ctx context.Context) time.Time {
	exp, _ := ctx.Value(CtxExpiresAt).(time.Time)
	return exp
}

func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(30*time.Second),
			)
			if err != nil || token == nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			sub, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			if sub == "" {
				http.Error(w, "Invalid token subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUserID, sub)
			ctx = context.WithValue(ctx, CtxEmail, email)
			if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
				ctx = context.WithValue(ctx, CtxExpiresAt, exp.Time)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
