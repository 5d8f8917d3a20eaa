package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/internal/models"
)

const principalKey = "principal"

// Claims is the JWT payload issued by the auth service.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for p. Used by tests and the CLI to
// mint development tokens.
func GenerateToken(secret []byte, p models.Principal, ttl time.Duration) (string, error) {
	claims := Claims{
		ID:       p.UserID,
		Username: p.Username,
		Name:     p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken verifies signature and expiry and returns the principal.
func ValidateToken(secret []byte, raw string) (models.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return models.Principal{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Principal{}, errors.New("invalid token")
	}
	if claims.ID <= 0 {
		return models.Principal{}, errors.New("token has no user id")
	}
	return models.Principal{UserID: claims.ID, Username: claims.Username, Name: claims.Name}, nil
}

// authenticate resolves the bearer token into a principal and records the
// user before any handler runs.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		p, err := ValidateToken(s.secret, strings.TrimSpace(raw))
		if err != nil {
			s.logger.Debug("rejected token", "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err := s.svc.SyncPrincipal(c.Request.Context(), p); err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

func principal(c *gin.Context) models.Principal {
	p, _ := c.MustGet(principalKey).(models.Principal)
	return p
}
