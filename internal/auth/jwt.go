// Package auth turns a bearer credential into a user identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

var ErrInvalidToken = errors.New("invalid token")

// Resolver maps a credential to a user id or fails Unauthorized.
type Resolver interface {
	ResolveIdentity(ctx context.Context, credential string) (uuid.UUID, error)
}

// JWTResolver validates HS256 tokens issued by the auth service. The sub
// claim is the user id; a username claim refreshes the local user row.
type JWTResolver struct {
	secret []byte
	users  repositories.UserRepository
}

func NewJWTResolver(secret string, users repositories.UserRepository) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), users: users}
}

// ResolveIdentity accepts a raw token or a "Bearer <token>" header value.
func (r *JWTResolver) ResolveIdentity(ctx context.Context, credential string) (uuid.UUID, error) {
	tokenString := strings.TrimSpace(credential)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		tokenString = strings.TrimSpace(tokenString[7:])
	}
	if tokenString == "" {
		return uuid.Nil, apperr.Unauthorized("missing credential")
	}

	userID, username, err := r.parse(tokenString)
	if err != nil {
		return uuid.Nil, apperr.Unauthorized("invalid token")
	}

	if username != "" {
		err := r.users.UpsertUser(ctx, models.User{ID: userID, Username: username})
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, repositories.ErrUsernameTaken) {
			return uuid.Nil, apperr.Internal("user sync failed", err)
		}
		// Another id holds the name. Keep the stored row as it is.
		log.Printf("auth username refresh skipped user_id=%s username=%s: %v", userID, username, err)
		if _, err := r.users.GetUser(ctx, userID); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return uuid.Nil, apperr.Validation("username is already taken")
			}
			return uuid.Nil, apperr.Internal("user lookup failed", err)
		}
		return userID, nil
	}

	if _, err := r.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return uuid.Nil, apperr.Unauthorized("unknown user")
		}
		log.Printf("auth user lookup failed user_id=%s: %v", userID, err)
		return uuid.Nil, apperr.Internal("user lookup failed", err)
	}
	return userID, nil
}

func (r *JWTResolver) parse(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return userID, strings.ToLower(strings.TrimSpace(username)), nil
}
