package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestPurpose: Validates that migration and login outcomes are exported through the global meter provider.
// Scope: Unit Test
// Expected: The manual reader collects the migration counter, duration histogram and login counter.
// Test Case ID: MET-01
func TestOrganizationMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	ctx := context.Background()
	meter, err := New(ctx, Config{ServiceName: "orgmanager-test"})
	require.NoError(t, err)
	m, err := NewOrganizationMetrics(meter)
	require.NoError(t, err)

	m.RecordMigration(ctx, "success", 150*time.Millisecond, 3)
	m.RecordLogin(ctx, "failure")
	m.RecordReclaim(ctx, 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["orgmanager.migrations"])
	assert.True(t, names["orgmanager.migration.duration"])
	assert.True(t, names["orgmanager.migration.documents"])
	assert.True(t, names["orgmanager.partitions.reclaimed"])
	assert.True(t, names["orgmanager.logins"])
}

func TestOrganizationMetrics_NilSafe(t *testing.T) {
	var m *OrganizationMetrics
	assert.NotPanics(t, func() {
		m.RecordMigration(context.Background(), "success", time.Second, 1)
		m.RecordLogin(context.Background(), "success")
		m.RecordReclaim(context.Background(), 1)
	})
}
