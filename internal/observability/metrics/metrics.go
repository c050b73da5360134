package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
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
	preauthsCreated metric.Int64Counter
	paymentEvents   metric.Int64Counter
	captures        metric.Int64Counter
	refunds         metric.Int64Counter
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
		name = "encuentraya-payments"
	}
	meter := provider.Meter(name)

	preauthsCreated, err := meter.Int64Counter("payments_preauths_created_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("payments_provider_events_total")
	if err != nil {
		return nil, err
	}
	captures, err := meter.Int64Counter("payments_captures_total")
	if err != nil {
		return nil, err
	}
	refunds, err := meter.Int64Counter("payments_refunds_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		preauthsCreated: preauthsCreated,
		paymentEvents:   paymentEvents,
		captures:        captures,
		refunds:         refunds,
	}, nil
}

// RecordPreauthCreated increments preauthorization creation counts.
func (m *Metrics) RecordPreauthCreated(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.preauthsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments provider event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCapture increments capture counts.
func (m *Metrics) RecordCapture(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.captures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRefund increments refund counts.
func (m *Metrics) RecordRefund(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.refunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":   {},
	"event_type": {},
	"status":     {},
}

// filterAttributes drops labels outside the allow-list so cardinality
// stays bounded regardless of what callers pass.
func filterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.AsString() == "" {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
