// Package middleware carries the API's ambient concerns: operator auth,
// rate limiting, security headers, and the WebSocket event hub.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenExpiry = 12 * time.Hour

	maxLoginFailures = 5
	lockoutDuration  = 10 * time.Minute
)

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService validates the single operator credential and issues JWTs.
// When no secret or password hash is configured, login is disabled and
// every token check fails closed.
type AuthService struct {
	secret       []byte
	username     string
	passwordHash string

	mu       sync.Mutex
	failures map[string]*loginFailure
}

type loginFailure struct {
	count        int
	lockoutUntil time.Time
}

// NewAuthService builds an auth service from configured credentials.
func NewAuthService(secret, username, passwordHash string) *AuthService {
	return &AuthService{
		secret:       []byte(secret),
		username:     username,
		passwordHash: passwordHash,
		failures:     make(map[string]*loginFailure),
	}
}

// Enabled reports whether a usable credential is configured.
func (a *AuthService) Enabled() bool {
	return len(a.secret) > 0 && a.passwordHash != ""
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Login checks the credential and returns a signed token. Repeated failures
// from one client IP trip a temporary lockout.
func (a *AuthService) Login(clientIP, username, password string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("authentication is not configured")
	}
	if locked, until := a.isLockedOut(clientIP); locked {
		return "", fmt.Errorf("too many failed attempts, locked out until %s", until.Format(time.RFC3339))
	}
	if username != a.username || bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) != nil {
		a.recordFailure(clientIP)
		return "", fmt.Errorf("invalid credentials")
	}
	a.clearFailures(clientIP)

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a token string.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// RequireAuth guards API routes with a bearer token.
func (a *AuthService) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication is not configured"})
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

func (a *AuthService) isLockedOut(clientIP string) (bool, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.failures[clientIP]
	if !ok {
		return false, time.Time{}
	}
	if time.Now().Before(f.lockoutUntil) {
		return true, f.lockoutUntil
	}
	return false, time.Time{}
}

func (a *AuthService) recordFailure(clientIP string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.failures[clientIP]
	if !ok {
		f = &loginFailure{}
		a.failures[clientIP] = f
	}
	f.count++
	if f.count >= maxLoginFailures {
		f.lockoutUntil = time.Now().Add(lockoutDuration)
		f.count = 0
	}
}

func (a *AuthService) clearFailures(clientIP string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, clientIP)
}
