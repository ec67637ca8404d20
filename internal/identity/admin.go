// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"errors"
)

// Domain errors
var (
	ErrAdminNotFound       = errors.New("admin not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidTokenPayload = errors.New("invalid token payload")
	ErrWeakSigningSecret   = errors.New("token signing secret must be at least 32 bytes")
)

// Admin is the credential view of an organization's administrator.
// The master record stays owned by the tenant package.
type Admin struct {
	Organization string
	Email        string
	PasswordHash string
}

// Principal is the authorization context carried by a verified access token.
type Principal struct {
	AdminEmail   string `json:"admin_email"`
	Organization string `json:"organization"`
}

// AdminRepository defines the lookups the credential service needs from the master store
type AdminRepository interface {
	// GetByAdminEmail returns ErrAdminNotFound when no organization has this admin
	GetByAdminEmail(ctx context.Context, email string) (*Admin, error)

	// UpdatePasswordHash replaces the stored hash for an organization's admin
	UpdatePasswordHash(ctx context.Context, organization, passwordHash string) error
}
