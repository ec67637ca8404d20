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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/id"
	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
)

const (
	DefaultMigrationTimeout      = 30 * time.Second
	DefaultMigrationMaxDocuments = 100000
	DefaultMigrationBatchSize    = 500

	defaultListLimit = 50
	maxListLimit     = 500

	// cleanupTimeout bounds best-effort partition cleanup that runs after
	// the caller's context may already have expired.
	cleanupTimeout = 10 * time.Second
)

// Migration outcomes reported to the MigrationRecorder
const (
	OutcomeSuccess   = "success"
	OutcomeNotFound  = "not_found"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "resource_exhausted"
	OutcomeTimeout   = "timeout"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// MigrationOptions bounds a partition migration
type MigrationOptions struct {
	Timeout      time.Duration
	MaxDocuments int64
	BatchSize    int
}

func (o MigrationOptions) withDefaults() MigrationOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultMigrationTimeout
	}
	if o.MaxDocuments <= 0 {
		o.MaxDocuments = DefaultMigrationMaxDocuments
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultMigrationBatchSize
	}
	return o
}

// MigrationRecorder receives migration outcomes for metrics
type MigrationRecorder interface {
	RecordMigration(ctx context.Context, outcome string, elapsed time.Duration, documents int64)
}

// Service provides organization management business logic
type Service struct {
	store       Store
	locker      lock.Locker
	hasher      *identity.PasswordHasher
	auditLogger audit.Logger
	metrics     MigrationRecorder
	opts        MigrationOptions
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates a new organization service
func NewService(
	store Store,
	locker lock.Locker,
	hasher *identity.PasswordHasher,
	auditLogger audit.Logger,
	metrics MigrationRecorder,
	opts MigrationOptions,
) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Service{
		store:       store,
		locker:      locker,
		hasher:      hasher,
		auditLogger: auditLogger,
		metrics:     metrics,
		opts:        opts.withDefaults(),
		tracer:      otel.Tracer("github.com/opentrusty/orgmanager/internal/tenant"),
		now:         time.Now,
	}
}

// WithTracer replaces the global tracer used for service spans
func (s *Service) WithTracer(tracer trace.Tracer) *Service {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// Options returns the effective migration bounds
func (s *Service) Options() MigrationOptions {
	return s.opts
}

// CreateOrganization registers an organization and provisions its empty partition
func (s *Service) CreateOrganization(ctx context.Context, name, adminEmail, password string) (*Organization, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(adminEmail); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrInvalidPassword
	}

	ctx, span := s.tracer.Start(ctx, "tenant.CreateOrganization",
		trace.WithAttributes(attribute.String("organization", name)))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.store.GetByName(ctx, name); err == nil {
		return nil, ErrNameConflict
	} else if !errors.Is(err, ErrOrganizationNotFound) {
		return nil, fmt.Errorf("failed to check organization name: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	org := &Organization{
		ID:            id.NewUUIDv7(),
		Name:          name,
		PartitionName: PartitionName(name),
		AdminEmail:    adminEmail,
		PasswordHash:  hash,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created := false
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Create(ctx, org); err != nil {
			return err
		}
		created = true
		if err := s.reclaimLeftover(ctx, tx, org.PartitionName); err != nil {
			return err
		}
		return tx.CreatePartition(ctx, org.PartitionName)
	})
	if err != nil {
		if created && !s.store.Transactional() {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			if derr := s.store.Delete(cleanupCtx, org.Name, org.Version); derr != nil {
				slog.ErrorContext(ctx, "failed to roll back organization record", logger.Organization(name), logger.Error(derr))
			}
			cancel()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeOrganizationCreated,
		Organization: org.Name,
		ActorID:      org.AdminEmail,
		Resource:     org.PartitionName,
		Metadata:     map[string]any{audit.AttrPartition: org.PartitionName},
	})

	return org, nil
}

// GetOrganization retrieves an organization by name
func (s *Service) GetOrganization(ctx context.Context, name string) (*Organization, error) {
	return s.store.GetByName(ctx, name)
}

// ListOrganizations lists organizations with pagination
func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// authorize checks that the principal's organization claim names the target.
func (s *Service) authorize(ctx context.Context, principal *identity.Principal, organization, action string) error {
	if principal != nil && principal.Organization == organization {
		return nil
	}
	actor, scope := "", ""
	if principal != nil {
		actor, scope = principal.AdminEmail, principal.Organization
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeAccessDenied,
		Organization: organization,
		ActorID:      actor,
		Resource:     action,
		Metadata:     map[string]any{"token_organization": scope},
	})
	return ErrForbidden
}

// reclaimLeftover drops a partition that exists under a name no master
// record owns, so a new owner starts from an empty partition. The caller
// must hold the lock on the organization name.
func (s *Service) reclaimLeftover(ctx context.Context, st Store, partition string) error {
	exists, err := st.PartitionExists(ctx, partition)
	if err != nil {
		return err
	}
	if exists {
		slog.WarnContext(ctx, "dropping leftover partition", logger.Partition(partition))
		if err := st.DropPartition(ctx, partition); err != nil {
			return fmt.Errorf("failed to drop leftover partition: %w", err)
		}
	}
	return st.ForgetOrphan(ctx, partition)
}

// dropOrphan drops a partition that was recorded as orphaned in the
// committed transaction. Failures leave the orphan record in place for the
// Reclaimer.
func (s *Service) dropOrphan(ctx context.Context, partition, organization, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.store.DropPartition(ctx, partition); err != nil {
		slog.WarnContext(ctx, "partition left for reclaimer",
			logger.Partition(partition), logger.Organization(organization), logger.Error(err))
		s.auditLogger.Log(ctx, audit.Event{
			Type:         audit.TypePartitionOrphaned,
			Organization: organization,
			Resource:     partition,
			Metadata:     map[string]any{audit.AttrReason: reason, audit.AttrPartition: partition},
		})
		return
	}
	if err := s.store.ForgetOrphan(ctx, partition); err != nil {
		slog.WarnContext(ctx, "failed to forget reclaimed partition", logger.Partition(partition), logger.Error(err))
	}
}

func migrationOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrOrganizationNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrNameConflict), errors.Is(err, ErrConcurrentModification):
		return OutcomeConflict
	case errors.Is(err, ErrResourceExhausted):
		return OutcomeRejected
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}
