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
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/id"
	"github.com/opentrusty/orgmanager/internal/identity"
)

const (
	defaultDocumentPage = 100
	maxDocumentPage     = 1000
)

// AddDocument stores a JSON object in the organization's partition.
// It takes the organization lock so the insert cannot race a migration.
func (s *Service) AddDocument(ctx context.Context, principal *identity.Principal, organization string, body json.RawMessage) (*Document, error) {
	if err := s.authorize(ctx, principal, organization, "add_document"); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrInvalidDocument
	}

	unlock, err := s.locker.Lock(ctx, organization)
	if err != nil {
		return nil, err
	}
	defer unlock()

	org, err := s.store.GetByName(ctx, organization)
	if err != nil {
		return nil, err
	}

	doc := Document{
		ID:        id.NewUUIDv7(),
		Body:      json.RawMessage(trimmed),
		CreatedAt: s.now(),
	}
	if err := s.store.InsertDocument(ctx, org.PartitionName, doc); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeDocumentCreated,
		Organization: organization,
		ActorID:      principal.AdminEmail,
		Resource:     doc.ID,
	})

	return &doc, nil
}

// ListDocuments pages through the organization's partition in ID order.
func (s *Service) ListDocuments(ctx context.Context, principal *identity.Principal, organization, afterID string, limit int) ([]Document, error) {
	if err := s.authorize(ctx, principal, organization, "list_documents"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDocumentPage
	}
	if limit > maxDocumentPage {
		limit = maxDocumentPage
	}

	org, err := s.store.GetByName(ctx, organization)
	if err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, org.PartitionName, afterID, limit)
}
