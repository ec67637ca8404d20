package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/orgmanager/internal/tenant"
)

// TestPurpose: Validates translation of PostgreSQL error codes to tenant sentinel errors.
// Scope: Unit Test
// Expected: Name uniqueness, missing and duplicate partitions, and serialization failures map to their sentinels.
// Test Case ID: PG-02
func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "organization name unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOrganizationName},
			want: tenant.ErrNameConflict,
		},
		{
			name: "wrapped partition name unique violation",
			err:  fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOrganizationPartition}),
			want: tenant.ErrNameConflict,
		},
		{
			name: "undefined table",
			err:  &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "org_x" does not exist`},
			want: tenant.ErrPartitionNotFound,
		},
		{
			name: "duplicate table",
			err:  &pgconn.PgError{Code: pgerrcode.DuplicateTable},
			want: tenant.ErrPartitionExists,
		},
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			want: tenant.ErrConcurrentModification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}

func TestMapError_Passthrough(t *testing.T) {
	assert.NoError(t, mapError(nil))

	plain := errors.New("network down")
	assert.Same(t, plain, mapError(plain))

	docDup := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "org_acme_pkey"}
	mapped := mapError(docDup)
	assert.NotErrorIs(t, mapped, tenant.ErrNameConflict)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(mapped, &pgErr))
}

func TestPartitionTable_Quotes(t *testing.T) {
	assert.Equal(t, `"org_acme-new"`, partitionTable("org_acme-new"))
	assert.Equal(t, `"org_a""b"`, partitionTable(`org_a"b`))
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].version)
	assert.Contains(t, migrations[0].content, "CREATE TABLE IF NOT EXISTS organizations")
	assert.Contains(t, migrations[0].content, constraintOrganizationName)
}
