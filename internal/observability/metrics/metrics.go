package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	rowsImported   metric.Int64Counter
	rowsDuplicated metric.Int64Counter
	rowsSkipped    metric.Int64Counter
	groupsApplied  metric.Int64Counter
	applyConflicts metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tollsync"
	}
	meter := provider.Meter(name)

	rowsImported, err := meter.Int64Counter("tollsync_rows_imported_total")
	if err != nil {
		return nil, err
	}
	rowsDuplicated, err := meter.Int64Counter("tollsync_rows_duplicated_total")
	if err != nil {
		return nil, err
	}
	rowsSkipped, err := meter.Int64Counter("tollsync_rows_skipped_total")
	if err != nil {
		return nil, err
	}
	groupsApplied, err := meter.Int64Counter("tollsync_groups_applied_total")
	if err != nil {
		return nil, err
	}
	applyConflicts, err := meter.Int64Counter("tollsync_apply_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rowsImported:   rowsImported,
		rowsDuplicated: rowsDuplicated,
		rowsSkipped:    rowsSkipped,
		groupsApplied:  groupsApplied,
		applyConflicts: applyConflicts,
	}, nil
}

func (m *Metrics) RecordImport(ctx context.Context, inserted, duplicated, skipped int) {
	if m == nil {
		return
	}
	if inserted > 0 {
		m.rowsImported.Add(ctx, int64(inserted))
	}
	if duplicated > 0 {
		m.rowsDuplicated.Add(ctx, int64(duplicated))
	}
	if skipped > 0 {
		m.rowsSkipped.Add(ctx, int64(skipped))
	}
}

func (m *Metrics) RecordApply(ctx context.Context) {
	if m == nil {
		return
	}
	m.groupsApplied.Add(ctx, 1)
}

func (m *Metrics) RecordConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.applyConflicts.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
