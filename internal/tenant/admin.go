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

package tenant

import (
	"context"
	"errors"

	"github.com/opentrusty/orgmanager/internal/identity"
)

// AdminStore exposes organization admin credentials to the identity service.
type AdminStore struct {
	repo Repository
}

// NewAdminStore creates a new admin credential adapter
func NewAdminStore(repo Repository) *AdminStore {
	return &AdminStore{repo: repo}
}

// GetByAdminEmail implements identity.AdminRepository
func (a *AdminStore) GetByAdminEmail(ctx context.Context, email string) (*identity.Admin, error) {
	org, err := a.repo.GetByAdminEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return nil, identity.ErrAdminNotFound
		}
		return nil, err
	}
	return &identity.Admin{
		Organization: org.Name,
		Email:        org.AdminEmail,
		PasswordHash: org.PasswordHash,
	}, nil
}

// UpdatePasswordHash implements identity.AdminRepository
func (a *AdminStore) UpdatePasswordHash(ctx context.Context, organization, passwordHash string) error {
	return a.repo.UpdatePasswordHash(ctx, organization, passwordHash)
}
