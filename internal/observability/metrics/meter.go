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

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds metrics configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	ExportInterval time.Duration
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// New creates a new meter instance. When enabled it installs an OTLP/gRPC
// backed meter provider as the global provider; otherwise instruments are
// created on whatever global provider is already set.
func New(ctx context.Context, cfg Config) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter(cfg.ServiceName)}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &Meter{
		meter:    provider.Meter(cfg.ServiceName),
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the meter provider
func (m *Meter) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// OrganizationMetrics records partition migrations, reclaims and admin logins.
// A nil *OrganizationMetrics records nothing.
type OrganizationMetrics struct {
	migrations        metric.Int64Counter
	migrationDuration metric.Float64Histogram
	migratedDocuments metric.Int64Counter
	reclaimed         metric.Int64Counter
	logins            metric.Int64Counter
}

// NewOrganizationMetrics registers the organization instruments on m
func NewOrganizationMetrics(m *Meter) (*OrganizationMetrics, error) {
	migrations, err := m.CreateCounter("orgmanager.migrations", "Partition migrations by outcome")
	if err != nil {
		return nil, err
	}
	duration, err := m.CreateHistogram("orgmanager.migration.duration", "Partition migration duration", "s")
	if err != nil {
		return nil, err
	}
	documents, err := m.CreateCounter("orgmanager.migration.documents", "Documents copied by partition migrations")
	if err != nil {
		return nil, err
	}
	reclaimed, err := m.CreateCounter("orgmanager.partitions.reclaimed", "Orphaned partitions dropped")
	if err != nil {
		return nil, err
	}
	logins, err := m.CreateCounter("orgmanager.logins", "Admin login attempts by outcome")
	if err != nil {
		return nil, err
	}
	return &OrganizationMetrics{
		migrations:        migrations,
		migrationDuration: duration,
		migratedDocuments: documents,
		reclaimed:         reclaimed,
		logins:            logins,
	}, nil
}

// RecordMigration records one rename migration attempt
func (o *OrganizationMetrics) RecordMigration(ctx context.Context, outcome string, elapsed time.Duration, documents int64) {
	if o == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	o.migrations.Add(ctx, 1, attrs)
	o.migrationDuration.Record(ctx, elapsed.Seconds(), attrs)
	if documents > 0 {
		o.migratedDocuments.Add(ctx, documents)
	}
}

// RecordReclaim records dropped orphan partitions
func (o *OrganizationMetrics) RecordReclaim(ctx context.Context, count int) {
	if o == nil || count == 0 {
		return
	}
	o.reclaimed.Add(ctx, int64(count))
}

// RecordLogin records one admin login attempt
func (o *OrganizationMetrics) RecordLogin(ctx context.Context, outcome string) {
	if o == nil {
		return
	}
	o.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
