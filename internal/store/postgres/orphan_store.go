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

// RecordOrphan records a partition for the reclaimer
func (s *Store) RecordOrphan(ctx context.Context, orphan tenant.OrphanedPartition) error {
	if orphan.RecordedAt.IsZero() {
		orphan.RecordedAt = time.Now()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO orphaned_partitions (name, reason, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET reason = EXCLUDED.reason, recorded_at = EXCLUDED.recorded_at
	`, orphan.Name, orphan.Reason, orphan.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record orphaned partition: %w", mapError(err))
	}
	return nil
}

// ListOrphans returns the oldest orphans first
func (s *Store) ListOrphans(ctx context.Context, after *tenant.OrphanedPartition, limit int) ([]tenant.OrphanedPartition, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = s.q.Query(ctx, `
			SELECT name, reason, recorded_at
			FROM orphaned_partitions
			ORDER BY recorded_at, name
			LIMIT $1
		`, limit)
	} else {
		rows, err = s.q.Query(ctx, `
			SELECT name, reason, recorded_at
			FROM orphaned_partitions
			WHERE (recorded_at, name) > ($1, $2)
			ORDER BY recorded_at, name
			LIMIT $3
		`, after.RecordedAt, after.Name, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned partitions: %w", mapError(err))
	}
	defer rows.Close()

	orphans := []tenant.OrphanedPartition{}
	for rows.Next() {
		var o tenant.OrphanedPartition
		if err := rows.Scan(&o.Name, &o.Reason, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned partition: %w", err)
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

// ForgetOrphan deletes an orphan record
func (s *Store) ForgetOrphan(ctx context.Context, partition string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM orphaned_partitions WHERE name = $1`, partition); err != nil {
		return fmt.Errorf("failed to forget orphaned partition: %w", mapError(err))
	}
	return nil
}
