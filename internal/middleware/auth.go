package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

var redisClient *redis.Client

// InitAuthMiddleware wires the Redis client used for token blacklisting.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if isBlacklisted(r.Context(), token) {
			http.Error(w, "Token revoked", http.StatusUnauthorized)
			return
		}

		userID, storeID, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add caller identity to context
		ctx := context.WithValue(r.Context(), "userID", userID)
		ctx = context.WithValue(ctx, "storeID", storeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isBlacklisted(ctx context.Context, token string) bool {
	if redisClient == nil {
		return false
	}
	exists, err := redisClient.Exists(ctx, fmt.Sprintf("blacklist:%s", token)).Result()
	if err != nil {
		log.Printf("[AUTH] Blacklist check failed: %v", err)
		return false
	}
	return exists > 0
}

func validateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid token claims")
	}

	// JSON numbers decode as float64; format through int64 so large user
	// IDs never render in scientific notation.
	rawUserID, ok := claims["user_id"].(float64)
	if !ok {
		return "", "", errors.New("invalid user_id claim")
	}
	storeID, ok := claims["store_id"].(string)
	if !ok || storeID == "" {
		return "", "", errors.New("invalid store_id claim")
	}

	return strconv.FormatInt(int64(rawUserID), 10), storeID, nil
}

// SecurityHeaders sets the baseline response headers for every route.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
