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
	"strings"
	"time"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
)

// DefaultReclaimInterval is how often Start sweeps orphaned partitions
const DefaultReclaimInterval = 10 * time.Minute

const reclaimBatch = 100

// ReclaimRecorder receives reclaim counts for metrics
type ReclaimRecorder interface {
	RecordReclaim(ctx context.Context, count int)
}

// Reclaimer drops partitions left behind by renames and deletes whose
// final drop did not complete.
type Reclaimer struct {
	store       Store
	locker      lock.Locker
	auditLogger audit.Logger
	interval    time.Duration
	batchSize   int
	recorder    ReclaimRecorder
}

// NewReclaimer creates a new orphan partition reclaimer
func NewReclaimer(store Store, locker lock.Locker, auditLogger audit.Logger, interval time.Duration) *Reclaimer {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}
	return &Reclaimer{
		store:       store,
		locker:      locker,
		auditLogger: auditLogger,
		interval:    interval,
		batchSize:   reclaimBatch,
	}
}

// WithRecorder sets the metrics recorder
func (r *Reclaimer) WithRecorder(recorder ReclaimRecorder) *Reclaimer {
	r.recorder = recorder
	return r
}

// WithBatchSize sets how many orphans are read per page
func (r *Reclaimer) WithBatchSize(n int) *Reclaimer {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

// RunOnce drops every recorded orphan that no organization owns and
// returns how many partitions were dropped. Orphans that fail are skipped
// so later ones are still reached.
func (r *Reclaimer) RunOnce(ctx context.Context) (int, error) {
	dropped := 0
	var errs []error
	var after *OrphanedPartition
	for {
		orphans, err := r.store.ListOrphans(ctx, after, r.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list orphaned partitions: %w", err))
			break
		}

		for _, orphan := range orphans {
			ok, err := r.reclaim(ctx, orphan)
			if err != nil {
				slog.WarnContext(ctx, "failed to reclaim partition", logger.Partition(orphan.Name), logger.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", orphan.Name, err))
				continue
			}
			if ok {
				dropped++
			}
		}

		if len(orphans) < r.batchSize || ctx.Err() != nil {
			break
		}
		last := orphans[len(orphans)-1]
		after = &last
	}

	if r.recorder != nil {
		r.recorder.RecordReclaim(ctx, dropped)
	}
	return dropped, errors.Join(errs...)
}

func (r *Reclaimer) reclaim(ctx context.Context, orphan OrphanedPartition) (bool, error) {
	name := strings.TrimPrefix(orphan.Name, PartitionPrefix)
	unlock, err := r.locker.Lock(ctx, name)
	if err != nil {
		return false, err
	}
	defer unlock()

	org, err := r.store.GetByName(ctx, name)
	switch {
	case err == nil && org.PartitionName == orphan.Name:
		// the name was registered again and its partition is live
		return false, r.store.ForgetOrphan(ctx, orphan.Name)
	case err != nil && !errors.Is(err, ErrOrganizationNotFound):
		return false, err
	}

	if err := r.store.DropPartition(ctx, orphan.Name); err != nil {
		return false, err
	}
	if err := r.store.ForgetOrphan(ctx, orphan.Name); err != nil {
		return false, err
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePartitionReclaimed,
		ActorID:  audit.ActorSystemReclaimer,
		Resource: orphan.Name,
		Metadata: map[string]any{
			audit.AttrReason:    orphan.Reason,
			audit.AttrPartition: orphan.Name,
			"recorded_at":       orphan.RecordedAt,
		},
	})
	return true, nil
}

// Start sweeps immediately and then every interval until ctx is done.
func (r *Reclaimer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.RunOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "orphaned partition sweep failed", logger.Error(err))
		} else if n > 0 {
			slog.InfoContext(ctx, "reclaimed orphaned partitions", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
