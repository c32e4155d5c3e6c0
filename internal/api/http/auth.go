package httpapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "uid"

// Claims are the bearer token claims. The owner is uid when present, else sub.
type Claims struct {
	UID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) owner() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// RequireAuth verifies HS256 bearer tokens and stores the owner id in the request locals.
func RequireAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header || tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid Authorization header format")
		}

		uid, err := verifyToken(tokenStr, secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(ownerKey, uid)
		return c.Next()
	}
}

func verifyToken(tokenStr string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	uid := claims.owner()
	if uid == "" {
		return "", errors.New("token has no subject")
	}
	return uid, nil
}

// ownerID returns the authenticated owner set by RequireAuth.
func ownerID(c *fiber.Ctx) string {
	uid, _ := c.Locals(ownerKey).(string)
	return uid
}
