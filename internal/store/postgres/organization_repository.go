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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/orgmanager/internal/tenant"
)

const organizationColumns = `id, name, partition_name, admin_email, password_hash, version, created_at, updated_at`

func scanOrganization(row pgx.Row) (*tenant.Organization, error) {
	var org tenant.Organization
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.PartitionName,
		&org.AdminEmail,
		&org.PasswordHash,
		&org.Version,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Create inserts a master record
func (s *Store) Create(ctx context.Context, org *tenant.Organization) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO organizations (
			id, name, partition_name, admin_email, password_hash, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		org.ID, org.Name, org.PartitionName, org.AdminEmail, org.PasswordHash,
		org.Version, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert organization: %w", mapError(err))
	}
	return nil
}

// GetByName retrieves a master record by organization name
func (s *Store) GetByName(ctx context.Context, name string) (*tenant.Organization, error) {
	org, err := scanOrganization(s.q.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapError(err))
	}
	return org, nil
}

// GetByAdminEmail retrieves the earliest created organization administered by email
func (s *Store) GetByAdminEmail(ctx context.Context, email string) (*tenant.Organization, error) {
	org, err := scanOrganization(s.q.QueryRow(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE lower(admin_email) = lower($1)
		ORDER BY created_at, id
		LIMIT 1
	`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization by admin email: %w", mapError(err))
	}
	return org, nil
}

// Rename moves the record to newName if it still carries version
func (s *Store) Rename(ctx context.Context, oldName string, version int64, newName, newPartition string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE organizations
		SET name = $3, partition_name = $4, version = version + 1, updated_at = now()
		WHERE name = $1 AND version = $2
	`, oldName, version, newName, newPartition)
	if err != nil {
		return fmt.Errorf("failed to rename organization: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrConcurrentModification
	}
	return nil
}

// Delete removes the record if it still carries version
func (s *Store) Delete(ctx context.Context, name string, version int64) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM organizations WHERE name = $1 AND version = $2`, name, version)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrConcurrentModification
	}
	return nil
}

// UpdatePasswordHash replaces the admin password hash
func (s *Store) UpdatePasswordHash(ctx context.Context, name, hash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE organizations
		SET password_hash = $2, version = version + 1, updated_at = now()
		WHERE name = $1
	`, name, hash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrOrganizationNotFound
	}
	return nil
}

// List returns organizations ordered by creation time
func (s *Store) List(ctx context.Context, limit, offset int) ([]*tenant.Organization, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		ORDER BY created_at, name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapError(err))
	}
	defer rows.Close()

	orgs := []*tenant.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}
