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
	"fmt"
	"log/slog"

	"github.com/opentrusty/orgmanager/internal/observability/logger"
)

// BootstrapConfig describes the organization provisioned on first start
type BootstrapConfig struct {
	OrganizationName string
	AdminEmail       string
	AdminPassword    string
}

// Enabled reports whether a bootstrap organization is configured
func (c BootstrapConfig) Enabled() bool {
	return c.OrganizationName != ""
}

// Bootstrap creates the configured organization unless it already exists.
func (s *Service) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	if _, err := s.store.GetByName(ctx, cfg.OrganizationName); err == nil {
		return nil
	} else if !errors.Is(err, ErrOrganizationNotFound) {
		return fmt.Errorf("failed to check bootstrap organization: %w", err)
	}

	org, err := s.CreateOrganization(ctx, cfg.OrganizationName, cfg.AdminEmail, cfg.AdminPassword)
	if errors.Is(err, ErrNameConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap organization %s: %w", cfg.OrganizationName, err)
	}

	slog.InfoContext(ctx, "bootstrapped initial organization",
		logger.Organization(org.Name), logger.Email(org.AdminEmail))
	return nil
}
