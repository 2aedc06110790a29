package middleware

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/logger"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errInvalidToken         = errors.New("invalid token")
)

// AuthConfig holds the credentials accepted by protected endpoints. Either
// mechanism alone is sufficient: a valid JWT signed by the configured key, or
// one of the static API keys.
type AuthConfig struct {
	JWTPublicKey *rsa.PublicKey
	APIKeys      []string
}

// ParseJWTPublicKey parses a PEM-encoded RSA public key for JWT verification
func ParseJWTPublicKey(pemKey string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}
	return key, nil
}

// Auth returns a gin middleware guarding operator endpoints. Requests carry
// either "Bearer <jwt>" or "Bearer <api-key>" in the Authorization header, or
// an api-key in the X-API-Key header.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		for _, key := range cfg.APIKeys {
			if key != "" && token == key {
				c.Next()
				return
			}
		}

		if cfg.JWTPublicKey != nil {
			err := validateJWT(token, cfg.JWTPublicKey)
			if err == nil {
				c.Next()
				return
			}
			logger.Debug("JWT validation failed", zap.Error(err))
		}

		abortUnauthorized(c, errInvalidToken)
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key, nil
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errMissingAuthorization
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errInvalidToken
	}
	return token, nil
}

func validateJWT(token string, key *rsa.PublicKey) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errInvalidToken
	}
	return nil
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "unauthorized",
			"message": err.Error(),
		},
	})
}
