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
)

var (
	ErrOrganizationNotFound   = errors.New("organization not found")
	ErrNameConflict           = errors.New("organization name already exists")
	ErrForbidden              = errors.New("token is not scoped to this organization")
	ErrResourceExhausted      = errors.New("partition exceeds migration size limit")
	ErrConcurrentModification = errors.New("organization was modified concurrently")
	ErrInvalidName            = errors.New("invalid organization name")
	ErrInvalidEmail           = errors.New("invalid admin email")
	ErrInvalidPassword        = errors.New("password is required")
	ErrInvalidDocument        = errors.New("document body must be a JSON object")
	ErrPartitionNotFound      = errors.New("partition not found")
	ErrPartitionExists        = errors.New("partition already exists")
)

// Repository defines the interface for organization master record storage
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByName(ctx context.Context, name string) (*Organization, error)
	GetByAdminEmail(ctx context.Context, email string) (*Organization, error)
	// Rename moves the record from oldName to newName only if it still
	// carries version. Otherwise it returns ErrConcurrentModification.
	Rename(ctx context.Context, oldName string, version int64, newName, newPartition string) error
	// Delete removes the record only if it still carries version.
	Delete(ctx context.Context, name string, version int64) error
	UpdatePasswordHash(ctx context.Context, name, hash string) error
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
}

// PartitionStore defines the interface for per-organization document partitions
type PartitionStore interface {
	CreatePartition(ctx context.Context, partition string) error
	// DropPartition succeeds when the partition does not exist.
	DropPartition(ctx context.Context, partition string) error
	PartitionExists(ctx context.Context, partition string) (bool, error)
	CountDocuments(ctx context.Context, partition string) (int64, error)
	// ListDocuments returns up to limit documents with ID greater than afterID, ordered by ID.
	ListDocuments(ctx context.Context, partition, afterID string, limit int) ([]Document, error)
	InsertDocuments(ctx context.Context, partition string, docs []Document) error
	InsertDocument(ctx context.Context, partition string, doc Document) error
}

// OrphanRecorder tracks partitions awaiting reclamation
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, orphan OrphanedPartition) error
	// ListOrphans pages orphans ordered by (RecordedAt, Name), starting
	// strictly after the given orphan; nil starts from the oldest.
	ListOrphans(ctx context.Context, after *OrphanedPartition, limit int) ([]OrphanedPartition, error)
	ForgetOrphan(ctx context.Context, partition string) error
}

// Store combines the storage collaborators of the organization service.
type Store interface {
	Repository
	PartitionStore
	OrphanRecorder

	// InTx runs fn against a transactional view of the store. Stores without
	// transactions call fn with themselves.
	InTx(ctx context.Context, fn func(Store) error) error
	// Transactional reports whether InTx rolls back on error.
	Transactional() bool
}
