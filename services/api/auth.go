// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// currentUserKey is the gin context key holding the authenticated caller.
const currentUserKey = "currentUser"

// tokenAudience is the audience claim issued by the identity provider for
// end-user sessions.
const tokenAudience = "authenticated"

// CurrentUser is the authenticated caller attached to a request. A nil
// CurrentUser means anonymous.
type CurrentUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the caller holds the admin role.
func (u *CurrentUser) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

// tokenClaims is the JWT payload shape we accept.
type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves bearer credentials into a CurrentUser.
//
// Description:
//
//	Three cases: no Authorization header leaves the request anonymous,
//	a bearer token equal to the configured seeding key authenticates as
//	the admin service account, and anything else must be a valid HS256
//	JWT with the end-user audience. Invalid tokens are rejected rather
//	than downgraded to anonymous.
//
// Thread Safety: Safe for concurrent use.
type Authenticator struct {
	secret      []byte
	seedingKey  string
	adminUserID string
	logger      *slog.Logger
}

// NewAuthenticator creates an authenticator. seedingKey may be empty to
// disable the service-account path.
func NewAuthenticator(secret []byte, seedingKey, adminUserID string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret:      secret,
		seedingKey:  seedingKey,
		adminUserID: adminUserID,
		logger:      logger,
	}
}

// Middleware attaches the resolved CurrentUser to the request context.
// Requests with malformed or invalid credentials are terminated with 401.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			unauthorized(c, "malformed authorization header")
			return
		}

		if a.seedingKey != "" && token == a.seedingKey {
			if a.adminUserID == "" {
				a.logger.Error("seeding key presented but admin user id not configured")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error: "seeding not configured",
					Code:  "SEEDING_MISCONFIGURED",
				})
				return
			}
			c.Set(currentUserKey, &CurrentUser{
				ID:    a.adminUserID,
				Email: "seeding@internal",
				Role:  "admin",
			})
			c.Next()
			return
		}

		user, err := a.parseToken(token)
		if err != nil {
			a.logger.Warn("token rejected", slog.String("error", err.Error()))
			unauthorized(c, "invalid authentication token")
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// parseToken validates the JWT and maps its claims onto a CurrentUser.
func (a *Authenticator) parseToken(token string) (*CurrentUser, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if !claims.VerifyAudience(tokenAudience, true) {
		return nil, jwt.ErrTokenInvalidAudience
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidId
	}

	role := "user"
	if claims.Role == "admin" {
		role = "admin"
	}
	return &CurrentUser{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  role,
	}, nil
}

// userFrom returns the authenticated caller, or nil for anonymous requests.
func userFrom(c *gin.Context) *CurrentUser {
	if v, ok := c.Get(currentUserKey); ok {
		if u, ok := v.(*CurrentUser); ok {
			return u
		}
	}
	return nil
}

// requireUser terminates the request with 401 when anonymous.
func requireUser(c *gin.Context) *CurrentUser {
	user := userFrom(c)
	if user == nil {
		unauthorized(c, "authentication required")
		return nil
	}
	return user
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error: msg,
		Code:  "UNAUTHENTICATED",
	})
}
