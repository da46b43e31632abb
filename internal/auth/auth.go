// Package auth guards the admin surface with a shared bearer token.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a validator for a single shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// BearerToken extracts the token from an `Authorization: Bearer` header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireBearer rejects requests whose bearer token v does not accept.
// A nil validator leaves the routes open.
func RequireBearer(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok || v.Validate(token) != nil {
			log.Debug().
				Str("path", c.FullPath()).
				Str("remote", c.ClientIP()).
				Msg("auth.RequireBearer rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}
