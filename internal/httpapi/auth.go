package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"alerthub/internal/domain"
	"alerthub/internal/metrics"
)

// Claims are the session token claims.
// Params: subject carries the user name; role and timezone ride along for
// the UI.
// Returns: JWT claim set.
type Claims struct {
	jwt.RegisteredClaims
	Role     int    `json:"role"`
	Timezone string `json:"timezone"`
}

// JWTService issues and validates session tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService builds the token service.
// Params: shared HMAC secret and token lifetime.
// Returns: ready service.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// GenerateToken signs a session token for one user.
// Params: authenticated user row.
// Returns: compact JWS or signing error.
func (s *JWTService) GenerateToken(user domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role:     user.Role,
		Timezone: user.Timezone,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a session token.
// Params: compact JWS from the Authorization header.
// Returns: claims or validation error.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// HashPassword derives the stored password form.
// Params: plaintext password.
// Returns: hex sha256 digest.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

type claimsKey struct{}

// JWTAuth rejects requests without a valid bearer token.
// Params: token service.
// Returns: middleware storing claims in the request context.
func JWTAuth(service *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
				return
			}
			claims, err := service.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestClaims reads the verified claims stored by JWTAuth.
func requestClaims(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsKey{}).(*Claims)
	return claims
}

// Login authenticates a user and issues a session token.
// Params: JSON body {username, password}.
// Returns: token plus identity fields, 400 on missing fields, 403 on bad
// credentials.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &body); err != nil || body.Username == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "Missing username or password"})
		return
	}

	user, err := s.store.GetUserByName(r.Context(), body.Username)
	if err != nil || user.Password != HashPassword(body.Password) {
		s.log.Error("failed user login attempt", "username", body.Username)
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		writeJSON(w, http.StatusForbidden, map[string]any{"msg": "Invalid credentials"})
		return
	}

	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		s.log.Error("token generation failed", "username", user.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "Internal server error"})
		return
	}
	s.log.Info("successful user login", "username", user.Name)
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"user_id":  user.Name,
		"role":     user.Role,
		"timezone": user.Timezone,
	})
}
