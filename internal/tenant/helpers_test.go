package tenant_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/store/memory"
	"github.com/opentrusty/orgmanager/internal/tenant"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(ctx context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type migrationCall struct {
	outcome   string
	documents int64
}

type recordingMetrics struct {
	mu    sync.Mutex
	calls []migrationCall
}

func (m *recordingMetrics) RecordMigration(ctx context.Context, outcome string, elapsed time.Duration, documents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, migrationCall{outcome: outcome, documents: documents})
}

func (m *recordingMetrics) last() migrationCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return migrationCall{}
	}
	return m.calls[len(m.calls)-1]
}

// faultyStore wraps the memory store and injects failures.
type faultyStore struct {
	*memory.Store

	mu        sync.Mutex
	renameErr error
	dropErr   map[string]error
	listCalls int
	insertErr error
	recordErr error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), dropErr: map[string]error{}}
}

func (f *faultyStore) InTx(ctx context.Context, fn func(tenant.Store) error) error {
	return fn(f)
}

func (f *faultyStore) Rename(ctx context.Context, oldName string, version int64, newName, newPartition string) error {
	f.mu.Lock()
	err := f.renameErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Rename(ctx, oldName, version, newName, newPartition)
}

func (f *faultyStore) DropPartition(ctx context.Context, partition string) error {
	f.mu.Lock()
	err := f.dropErr[partition]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.DropPartition(ctx, partition)
}

func (f *faultyStore) ListDocuments(ctx context.Context, partition, afterID string, limit int) ([]tenant.Document, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.Store.ListDocuments(ctx, partition, afterID, limit)
}

func (f *faultyStore) InsertDocuments(ctx context.Context, partition string, docs []tenant.Document) error {
	f.mu.Lock()
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.InsertDocuments(ctx, partition, docs)
}

func (f *faultyStore) RecordOrphan(ctx context.Context, orphan tenant.OrphanedPartition) error {
	f.mu.Lock()
	err := f.recordErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.RecordOrphan(ctx, orphan)
}

func (f *faultyStore) setDropErr(partition string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.dropErr, partition)
		return
	}
	f.dropErr[partition] = err
}

type fixture struct {
	svc     *tenant.Service
	audit   *recordingAudit
	metrics *recordingMetrics
	hasher  *identity.PasswordHasher
}

func newFixture(t *testing.T, store tenant.Store, opts tenant.MigrationOptions) *fixture {
	t.Helper()
	f := &fixture{
		audit:   &recordingAudit{},
		metrics: &recordingMetrics{},
		hasher:  identity.NewPasswordHasher(bcrypt.MinCost),
	}
	f.svc = tenant.NewService(store, lock.NewLocalLocker(), f.hasher, f.audit, f.metrics, opts)
	return f
}

func principal(org string) *identity.Principal {
	return &identity.Principal{AdminEmail: "admin@" + org + ".test", Organization: org}
}

// seedOrganization creates org and adds n documents to its partition.
func seedOrganization(t *testing.T, f *fixture, org string, n int) []tenant.Document {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateOrganization(ctx, org, "admin@"+org+".test", "correct horse battery staple")
	require.NoError(t, err)

	docs := make([]tenant.Document, 0, n)
	for i := 0; i < n; i++ {
		doc, err := f.svc.AddDocument(ctx, principal(org), org, json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)))
		require.NoError(t, err)
		docs = append(docs, *doc)
	}
	return docs
}

func partitionDocs(t *testing.T, store tenant.PartitionStore, partition string) []tenant.Document {
	t.Helper()
	docs, err := store.ListDocuments(context.Background(), partition, "", 10000)
	require.NoError(t, err)
	return docs
}

func partitionExists(t *testing.T, store tenant.PartitionStore, partition string) bool {
	t.Helper()
	ok, err := store.PartitionExists(context.Background(), partition)
	require.NoError(t, err)
	return ok
}
