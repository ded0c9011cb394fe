/**
 * @description
 * Authentication middleware for bearer JWTs.
 * Validates tokens against a JWKS endpoint (asymmetric keys) or the project's
 * HS256 secret, and exposes the subject as the caller's user id.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 * - github.com/golang-jwt/jwt/v5: JWT parsing
 * - github.com/MicahParks/keyfunc/v2: JWKS fetching and caching
 *
 * @notes
 * - The Authenticator is constructed once at startup and passed to the router.
 * - Close stops the background JWKS refresh.
 */

package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const userIDLocal = "user_id"

// Authenticator validates bearer tokens
type Authenticator struct {
	keyfunc jwt.Keyfunc
	methods []string
	jwks    *keyfunc.JWKS
}

// NewAuthenticator builds an Authenticator from config. With no key source
// configured it returns an Authenticator that rejects every token.
func NewAuthenticator(cfg *config.Config) (*Authenticator, error) {
	if cfg.Auth.JWKSURL != "" {
		// Refresh the JWKS every hour.
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.Error("There was an error with the JWKS refresh: %v", err)
			},
		})
		if err != nil {
			return nil, err
		}
		logger.Info("✅ Auth Middleware Initialized with JWKS")
		return &Authenticator{
			keyfunc: jwks.Keyfunc,
			methods: []string{"RS256", "ES256"},
			jwks:    jwks,
		}, nil
	}

	if cfg.Auth.JWTSecret != "" {
		logger.Info("✅ Auth Middleware Initialized with HS256 secret")
		return NewStaticAuthenticator(HMACKeyfunc(cfg.Auth.JWTSecret), "HS256"), nil
	}

	logger.Warn("No JWT key source configured. Protected routes will reject every request.")
	return &Authenticator{}, nil
}

// NewStaticAuthenticator builds an Authenticator around a fixed key function
func NewStaticAuthenticator(kf jwt.Keyfunc, methods ...string) *Authenticator {
	return &Authenticator{keyfunc: kf, methods: methods}
}

// HMACKeyfunc returns a key function for a shared HS256 secret
func HMACKeyfunc(secret string) jwt.Keyfunc {
	key := []byte(secret)
	return func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}
}

// Close stops the background JWKS refresh, if any
func (a *Authenticator) Close() {
	if a != nil && a.jwks != nil {
		a.jwks.EndBackground()
	}
}

func (a *Authenticator) parse(tokenString string) (string, error) {
	var opts []jwt.ParserOption
	if len(a.methods) > 0 {
		opts = append(opts, jwt.WithValidMethods(a.methods))
	}

	token, err := jwt.Parse(tokenString, a.keyfunc, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}

// Protected protects routes requiring authentication
func (a *Authenticator) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a == nil || a.keyfunc == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Auth configuration not initialized",
			})
		}

		// 1. Get Token from Header
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token format"})
		}

		// 2. Parse and Validate Token
		sub, err := a.parse(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token: " + err.Error()})
		}

		// 3. Set User ID in Context
		c.Locals(userIDLocal, sub)

		return c.Next()
	}
}

// Optional attaches the caller's user id when a bearer token is sent and lets
// anonymous requests through. A token that is sent but invalid is still a 401.
func (a *Authenticator) Optional() fiber.Handler {
	protected := a.Protected()
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Next()
		}
		return protected(c)
	}
}

// GetUserID returns the authenticated user's id from context
func GetUserID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals(userIDLocal).(string)
	if !ok || id == "" {
		return "", errors.New("user id not found in context")
	}
	return id, nil
}

// TriggerSecretHeader carries the shared secret on trigger webhooks
const TriggerSecretHeader = "X-Trigger-Secret"

// TriggerSecret guards webhook routes with a shared secret. An empty secret
// disables the check (development only; config refuses it in production).
func TriggerSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		got := c.Get(TriggerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid trigger secret"})
		}
		return c.Next()
	}
}
