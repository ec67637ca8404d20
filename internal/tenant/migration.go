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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
)

// RenameOrganization renames oldName to newName and migrates its partition.
//
// The new partition is populated and the master record switched inside one
// store transaction, and the old partition is recorded as an orphan there
// too. Only after that commits is the old partition dropped, so a failure at
// any point leaves either the original organization intact or a recorded
// orphan for the Reclaimer.
func (s *Service) RenameOrganization(ctx context.Context, principal *identity.Principal, oldName, newName string) error {
	start := s.now()
	if err := s.authorize(ctx, principal, oldName, "rename_organization"); err != nil {
		s.recordMigration(ctx, err, start, 0)
		return err
	}
	if err := ValidateName(newName); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "tenant.RenameOrganization", trace.WithAttributes(
		attribute.String("organization", oldName),
		attribute.String("organization.new_name", newName),
	))
	defer span.End()

	copied, err := s.rename(ctx, principal, oldName, newName)
	s.recordMigration(ctx, err, start, copied)
	span.SetAttributes(attribute.Int64("documents", copied))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, migrationOutcome(err))
		if errors.Is(err, ErrConcurrentModification) {
			s.auditLogger.Log(ctx, audit.Event{
				Type:         audit.TypeConcurrentModification,
				Organization: oldName,
				ActorID:      principal.AdminEmail,
				Resource:     "rename_organization",
				Metadata:     map[string]any{audit.AttrNewName: newName},
			})
		}
		return err
	}
	return nil
}

func (s *Service) rename(ctx context.Context, principal *identity.Principal, oldName, newName string) (int64, error) {
	unlock, err := lock.LockAll(ctx, s.locker, oldName, newName)
	if err != nil {
		return 0, err
	}
	defer unlock()

	org, err := s.store.GetByName(ctx, oldName)
	if err != nil {
		return 0, err
	}
	if _, err := s.store.GetByName(ctx, newName); err == nil {
		return 0, ErrNameConflict
	} else if !errors.Is(err, ErrOrganizationNotFound) {
		return 0, fmt.Errorf("failed to check organization name: %w", err)
	}
	if newName == oldName {
		return 0, ErrNameConflict
	}

	total, err := s.store.CountDocuments(ctx, org.PartitionName)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	if total > s.opts.MaxDocuments {
		s.auditLogger.Log(ctx, audit.Event{
			Type:         audit.TypeMigrationRejected,
			Organization: oldName,
			ActorID:      principal.AdminEmail,
			Resource:     org.PartitionName,
			Metadata:     map[string]any{audit.AttrDocuments: total, "limit": s.opts.MaxDocuments},
		})
		return 0, fmt.Errorf("%w: %d documents, limit %d", ErrResourceExhausted, total, s.opts.MaxDocuments)
	}

	oldPartition := org.PartitionName
	newPartition := PartitionName(newName)

	var copied int64
	renamed := false
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := s.reclaimLeftover(ctx, tx, newPartition); err != nil {
			return err
		}
		if err := tx.CreatePartition(ctx, newPartition); err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}

		n, err := s.copyPartition(ctx, tx, oldPartition, newPartition)
		copied = n
		if err != nil {
			return err
		}

		if err := tx.Rename(ctx, oldName, org.Version, newName, newPartition); err != nil {
			return err
		}
		renamed = true

		return tx.RecordOrphan(ctx, OrphanedPartition{
			Name:       oldPartition,
			Reason:     OrphanReasonRename,
			RecordedAt: s.now(),
		})
	})
	if err != nil && (s.store.Transactional() || !renamed) {
		if !s.store.Transactional() {
			s.abortRename(ctx, newPartition, oldName)
		}
		return copied, err
	}
	if err != nil {
		// the master record already points at newPartition
		slog.WarnContext(ctx, "failed to record orphaned partition", logger.Partition(oldPartition), logger.Error(err))
	}

	s.dropOrphan(ctx, oldPartition, newName, OrphanReasonRename)

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeOrganizationRenamed,
		Organization: newName,
		ActorID:      principal.AdminEmail,
		Resource:     newPartition,
		Metadata: map[string]any{
			audit.AttrOrganization: oldName,
			audit.AttrNewName:      newName,
			audit.AttrPartition:    newPartition,
			audit.AttrDocuments:    copied,
		},
	})
	slog.InfoContext(ctx, "organization renamed",
		logger.Organization(newName), logger.Partition(newPartition), logger.Documents(copied))

	return copied, nil
}

// copyPartition copies every document in keyset pages of BatchSize.
func (s *Service) copyPartition(ctx context.Context, st PartitionStore, from, to string) (int64, error) {
	var copied int64
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		docs, err := st.ListDocuments(ctx, from, afterID, s.opts.BatchSize)
		if err != nil {
			return copied, fmt.Errorf("failed to read partition %s: %w", from, err)
		}
		if len(docs) == 0 {
			return copied, nil
		}

		copied += int64(len(docs))
		if copied > s.opts.MaxDocuments {
			return copied, fmt.Errorf("%w: more than %d documents", ErrResourceExhausted, s.opts.MaxDocuments)
		}
		if err := st.InsertDocuments(ctx, to, docs); err != nil {
			return copied, fmt.Errorf("failed to write partition %s: %w", to, err)
		}

		afterID = docs[len(docs)-1].ID
		if len(docs) < s.opts.BatchSize {
			return copied, nil
		}
	}
}

// abortRename removes a partially populated target partition when the store
// could not roll it back.
func (s *Service) abortRename(ctx context.Context, partition, organization string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := s.store.DropPartition(ctx, partition)
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "failed to drop aborted partition", logger.Partition(partition), logger.Error(err))
	err = s.store.RecordOrphan(ctx, OrphanedPartition{
		Name:       partition,
		Reason:     OrphanReasonRenameAborted,
		RecordedAt: s.now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to record aborted partition", logger.Partition(partition), logger.Error(err))
		return
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypePartitionOrphaned,
		Organization: organization,
		Resource:     partition,
		Metadata:     map[string]any{audit.AttrReason: OrphanReasonRenameAborted},
	})
}

// DeleteOrganization removes the master record first and the partition after.
func (s *Service) DeleteOrganization(ctx context.Context, principal *identity.Principal, name string) error {
	if err := s.authorize(ctx, principal, name, "delete_organization"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "tenant.DeleteOrganization",
		trace.WithAttributes(attribute.String("organization", name)))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	org, err := s.store.GetByName(ctx, name)
	if err != nil {
		return err
	}

	deleted := false
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Delete(ctx, name, org.Version); err != nil {
			return err
		}
		deleted = true
		return tx.RecordOrphan(ctx, OrphanedPartition{
			Name:       org.PartitionName,
			Reason:     OrphanReasonDelete,
			RecordedAt: s.now(),
		})
	})
	if err != nil && (s.store.Transactional() || !deleted) {
		span.RecordError(err)
		return err
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to record orphaned partition", logger.Partition(org.PartitionName), logger.Error(err))
	}

	s.dropOrphan(ctx, org.PartitionName, name, OrphanReasonDelete)

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeOrganizationDeleted,
		Organization: name,
		ActorID:      principal.AdminEmail,
		Resource:     org.PartitionName,
		Metadata:     map[string]any{audit.AttrPartition: org.PartitionName},
	})

	return nil
}

func (s *Service) recordMigration(ctx context.Context, err error, start time.Time, documents int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordMigration(ctx, migrationOutcome(err), s.now().Sub(start), documents)
}
