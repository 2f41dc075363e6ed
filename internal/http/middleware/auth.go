package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// OperatorClaims identify who is allowed to drive automations over HTTP.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) (*AuthMiddleware, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("missing JWT_SECRET_KEY")
	}
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), secret: []byte(secret)}, nil
}

// SignToken issues an HS256 operator token valid for ttl.
func (am *AuthMiddleware) SignToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
}

func (am *AuthMiddleware) parse(tokenString string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("invalid or expired token")
	}
	return claims, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		claims, err := am.parse(tokenString)
		if err != nil {
			am.log.Debug("Rejected operator token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		ctx := ctxutil.WithOperator(c.Request.Context(), &ctxutil.Operator{Subject: claims.Subject})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
