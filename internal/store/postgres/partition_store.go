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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/orgmanager/internal/tenant"
)

var documentColumns = []string{"id", "body", "created_at"}

// CreatePartition creates the document table backing a partition
func (s *Store) CreatePartition(ctx context.Context, partition string) error {
	_, err := s.q.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id         TEXT        PRIMARY KEY,
			body       JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, partitionTable(partition)))
	if err != nil {
		return fmt.Errorf("failed to create partition %s: %w", partition, mapError(err))
	}
	return nil
}

// DropPartition drops a partition table if it exists
func (s *Store) DropPartition(ctx context.Context, partition string) error {
	if _, err := s.q.Exec(ctx, `DROP TABLE IF EXISTS `+partitionTable(partition)); err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", partition, mapError(err))
	}
	return nil
}

// PartitionExists reports whether the partition table exists in the current schema
func (s *Store) PartitionExists(ctx context.Context, partition string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = $1
		)
	`, partition).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check partition %s: %w", partition, mapError(err))
	}
	return exists, nil
}

// CountDocuments counts the documents in a partition
func (s *Store) CountDocuments(ctx context.Context, partition string) (int64, error) {
	var n int64
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM `+partitionTable(partition)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", mapError(err))
	}
	return n, nil
}

// ListDocuments returns one keyset page of documents ordered by id
func (s *Store) ListDocuments(ctx context.Context, partition, afterID string, limit int) ([]tenant.Document, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, body, created_at FROM `+partitionTable(partition)+`
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapError(err))
	}
	defer rows.Close()

	docs := []tenant.Document{}
	for rows.Next() {
		var (
			doc  tenant.Document
			body []byte
		)
		if err := rows.Scan(&doc.ID, &body, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Body = body
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapError(err))
	}
	return docs, nil
}

// InsertDocuments bulk loads documents with COPY
func (s *Store) InsertDocuments(ctx context.Context, partition string, docs []tenant.Document) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now()
	_, err := s.q.CopyFrom(ctx, pgx.Identifier{partition}, documentColumns,
		pgx.CopyFromSlice(len(docs), func(i int) ([]any, error) {
			created := docs[i].CreatedAt
			if created.IsZero() {
				created = now
			}
			return []any{docs[i].ID, []byte(docs[i].Body), created}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy documents into %s: %w", partition, mapError(err))
	}
	return nil
}

// InsertDocument inserts a single document
func (s *Store) InsertDocument(ctx context.Context, partition string, doc tenant.Document) error {
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO `+partitionTable(partition)+` (id, body, created_at) VALUES ($1, $2, $3)`,
		doc.ID, []byte(doc.Body), created)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapError(err))
	}
	return nil
}
