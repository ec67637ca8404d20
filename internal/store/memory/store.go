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

// Package memory is an in-process tenant.Store for tests and local development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentrusty/orgmanager/internal/tenant"
)

// Store implements tenant.Store with maps guarded by a single mutex.
// InTx is not transactional.
type Store struct {
	mu         sync.RWMutex
	orgs       map[string]*tenant.Organization
	partitions map[string]map[string]tenant.Document
	orphans    map[string]tenant.OrphanedPartition
	now        func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		orgs:       make(map[string]*tenant.Organization),
		partitions: make(map[string]map[string]tenant.Document),
		orphans:    make(map[string]tenant.OrphanedPartition),
		now:        time.Now,
	}
}

func cloneOrg(o *tenant.Organization) *tenant.Organization {
	c := *o
	return &c
}

func cloneDoc(d tenant.Document) tenant.Document {
	d.Body = slices.Clone(d.Body)
	return d
}

// InTx calls fn with the store itself
func (s *Store) InTx(ctx context.Context, fn func(tenant.Store) error) error {
	return fn(s)
}

// Transactional reports false: a failing InTx callback keeps earlier writes.
func (s *Store) Transactional() bool {
	return false
}

// Create inserts a master record
func (s *Store) Create(ctx context.Context, org *tenant.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[org.Name]; ok {
		return tenant.ErrNameConflict
	}
	s.orgs[org.Name] = cloneOrg(org)
	return nil
}

// GetByName returns the master record for name
func (s *Store) GetByName(ctx context.Context, name string) (*tenant.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[name]
	if !ok {
		return nil, tenant.ErrOrganizationNotFound
	}
	return cloneOrg(org), nil
}

// GetByAdminEmail returns the earliest created organization administered by email
func (s *Store) GetByAdminEmail(ctx context.Context, email string) (*tenant.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *tenant.Organization
	for _, org := range s.orgs {
		if !strings.EqualFold(org.AdminEmail, email) {
			continue
		}
		if found == nil || org.CreatedAt.Before(found.CreatedAt) ||
			(org.CreatedAt.Equal(found.CreatedAt) && org.ID < found.ID) {
			found = org
		}
	}
	if found == nil {
		return nil, tenant.ErrOrganizationNotFound
	}
	return cloneOrg(found), nil
}

// Rename moves the record if it still carries version
func (s *Store) Rename(ctx context.Context, oldName string, version int64, newName, newPartition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[oldName]
	if !ok || org.Version != version {
		return tenant.ErrConcurrentModification
	}
	if _, taken := s.orgs[newName]; taken {
		return tenant.ErrNameConflict
	}

	updated := cloneOrg(org)
	updated.Name = newName
	updated.PartitionName = newPartition
	updated.Version++
	updated.UpdatedAt = s.now()

	delete(s.orgs, oldName)
	s.orgs[newName] = updated
	return nil
}

// Delete removes the record if it still carries version
func (s *Store) Delete(ctx context.Context, name string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[name]
	if !ok || org.Version != version {
		return tenant.ErrConcurrentModification
	}
	delete(s.orgs, name)
	return nil
}

// UpdatePasswordHash replaces the admin password hash
func (s *Store) UpdatePasswordHash(ctx context.Context, name, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[name]
	if !ok {
		return tenant.ErrOrganizationNotFound
	}
	org.PasswordHash = hash
	org.Version++
	org.UpdatedAt = s.now()
	return nil
}

// List returns organizations ordered by creation time
func (s *Store) List(ctx context.Context, limit, offset int) ([]*tenant.Organization, error) {
	s.mu.RLock()
	all := make([]*tenant.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		all = append(all, cloneOrg(org))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Name < all[j].Name
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*tenant.Organization{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// CreatePartition creates an empty partition
func (s *Store) CreatePartition(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partitions[partition]; ok {
		return fmt.Errorf("%w: %s", tenant.ErrPartitionExists, partition)
	}
	s.partitions[partition] = make(map[string]tenant.Document)
	return nil
}

// DropPartition removes a partition and its documents
func (s *Store) DropPartition(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions, partition)
	return nil
}

// PartitionExists reports whether the partition exists
func (s *Store) PartitionExists(ctx context.Context, partition string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.partitions[partition]
	return ok, nil
}

// CountDocuments returns the number of documents in a partition
func (s *Store) CountDocuments(ctx context.Context, partition string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.partitions[partition]
	if !ok {
		return 0, fmt.Errorf("%w: %s", tenant.ErrPartitionNotFound, partition)
	}
	return int64(len(docs)), nil
}

// ListDocuments returns one keyset page of documents ordered by ID
func (s *Store) ListDocuments(ctx context.Context, partition, afterID string, limit int) ([]tenant.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tenant.ErrPartitionNotFound, partition)
	}

	ids := make([]string, 0, len(docs))
	for docID := range docs {
		if docID > afterID {
			ids = append(ids, docID)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	page := make([]tenant.Document, 0, len(ids))
	for _, docID := range ids {
		page = append(page, cloneDoc(docs[docID]))
	}
	return page, nil
}

// InsertDocuments inserts a batch of documents, all or nothing
func (s *Store) InsertDocuments(ctx context.Context, partition string, batch []tenant.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.partitions[partition]
	if !ok {
		return fmt.Errorf("%w: %s", tenant.ErrPartitionNotFound, partition)
	}
	for _, doc := range batch {
		if _, dup := docs[doc.ID]; dup {
			return fmt.Errorf("document %s already exists in %s", doc.ID, partition)
		}
	}
	for _, doc := range batch {
		docs[doc.ID] = cloneDoc(doc)
	}
	return nil
}

// InsertDocument inserts a single document
func (s *Store) InsertDocument(ctx context.Context, partition string, doc tenant.Document) error {
	return s.InsertDocuments(ctx, partition, []tenant.Document{doc})
}

// RecordOrphan records or refreshes an orphaned partition
func (s *Store) RecordOrphan(ctx context.Context, orphan tenant.OrphanedPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orphan.RecordedAt.IsZero() {
		orphan.RecordedAt = s.now()
	}
	s.orphans[orphan.Name] = orphan
	return nil
}

// ListOrphans returns the oldest recorded orphans first
func (s *Store) ListOrphans(ctx context.Context, after *tenant.OrphanedPartition, limit int) ([]tenant.OrphanedPartition, error) {
	s.mu.RLock()
	out := make([]tenant.OrphanedPartition, 0, len(s.orphans))
	for _, o := range s.orphans {
		if after == nil || orphanBefore(*after, o) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return orphanBefore(out[i], out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func orphanBefore(a, b tenant.OrphanedPartition) bool {
	if a.RecordedAt.Equal(b.RecordedAt) {
		return a.Name < b.Name
	}
	return a.RecordedAt.Before(b.RecordedAt)
}

// ForgetOrphan removes an orphan record
func (s *Store) ForgetOrphan(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orphans, partition)
	return nil
}

var _ tenant.Store = (*Store)(nil)
