package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"receiptvault/models"
	"receiptvault/store"
)

// bcryptCost matches the cost the accounts were originally hashed with.
const bcryptCost = 12

// SignupUser validates credentials and creates a free-tier profile. The
// store's conditional insert is the uniqueness authority; a duplicate email
// surfaces as store.ErrConflict even when two signups race.
func SignupUser(ctx context.Context, s store.Store, email, password string) (*models.UserProfile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email required")
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("password too short (min 6)")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	return s.CreateUser(ctx, &models.UserProfile{
		Email:            email,
		PasswordHash:     hash,
		SubscriptionTier: models.TierFree,
	})
}

// AuthenticateUser resolves email+password to a profile. Unknown email and
// wrong password are indistinguishable to the caller.
func AuthenticateUser(ctx context.Context, s store.Store, email, password string) (*models.UserProfile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return u, nil
}

// mintToken issues the access token carried by authenticated requests.
func mintToken(u *models.UserProfile) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// jwtAuthMiddleware resolves the caller's identity from the Bearer token
// and stores user_id/email on the request context.
func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		userID, _ := claims["sub"].(string)
		email, _ := claims["email"].(string)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Set("email", email)
		c.Next()
	}
}

// currentUser loads the authenticated caller's profile.
func currentUser(c *gin.Context) (*models.UserProfile, bool) {
	idVal, _ := c.Get("user_id")
	id, _ := idVal.(string)
	if id == "" {
		return nil, false
	}
	u, err := dataStore.GetUser(c.Request.Context(), id)
	if err != nil {
		return nil, false
	}
	return u, true
}
