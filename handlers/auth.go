package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var jwtSecret = []byte("default-dev-secret-change-me")

// SetJWTSecret replaces the signing key. Empty keeps the development key.
func SetJWTSecret(secret string) {
	if secret == "" {
		log.Println("⚠️ JWT_SECRET not set, using development secret")
		return
	}
	jwtSecret = []byte(secret)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login handles user authentication
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := dataStore.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := IssueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	if err := dataStore.TouchUser(c.Request.Context(), user.ID); err != nil {
		log.Printf("⚠️ Failed to update last active for %s: %v", user.Email, err)
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token: tokenString,
		User:  *user,
	})
}

// Me returns the authenticated user
func Me(c *gin.Context) {
	user, err := dataStore.GetUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, user)
}

// IssueToken signs a token carrying the user id and role
func IssueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"exp":  time.Now().Add(tokenDuration()).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// tokenDuration returns standard duration (24h)
func tokenDuration() time.Duration {
	return 24 * time.Hour
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// SeedAdminUser ensures the admin account exists
func SeedAdminUser(email, password string) {
	if password == "" {
		log.Println("⚠️ ADMIN_PASSWORD not set, skipping admin seed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := dataStore.GetUserByEmail(ctx, email); err == nil {
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("❌ Failed to look up admin user: %v", err)
		return
	}

	hashed, err := HashPassword(password)
	if err != nil {
		log.Printf("❌ Failed to hash password: %v", err)
		return
	}

	admin := models.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleAdmin,
	}
	if err := dataStore.AddUser(ctx, &admin); err != nil {
		log.Printf("❌ Failed to create admin user: %v", err)
	} else {
		log.Println("✅ Admin user seeded successfully")
	}
}

// AuthMiddleware protects routes. Browsers cannot set headers on WebSocket
// requests, so a token query parameter is accepted as well.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		c.Set("userID", sub)
		c.Set("role", role)

		c.Next()
	}
}

// RequireAccess rejects roles that may not use the resource
func RequireAccess(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString("role"))
		if !models.CanAccess(role, resource) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			c.Abort()
			return
		}
		c.Next()
	}
}
