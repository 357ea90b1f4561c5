package opflow

import (
	"log/slog"

	"github.com/viant/opflow/model"
	"github.com/viant/opflow/progress"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/executor"
	"github.com/viant/opflow/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the service
type Option func(s *Service)

// WithProbe sets the completion probe consulted at admission
func WithProbe(probe model.Probe) Option {
	return func(s *Service) {
		s.probe = probe
	}
}

// WithCommandBuilder sets the launch builder
func WithCommandBuilder(builder model.CommandBuilder) Option {
	return func(s *Service) {
		s.builder = builder
	}
}

// WithOrderer sets the orderer; it takes precedence over Config.Order
func WithOrderer(orderer model.Orderer) Option {
	return func(s *Service) {
		s.orderer = orderer
	}
}

// WithExecutor sets the launch executor
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithRegistry sets the status registry
func WithRegistry(registry dao.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithLogger sets the logger; it takes precedence over Config.Log
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProgressListener registers a callback receiving counters after every change
func WithProgressListener(listener func(progress.Progress)) Option {
	return func(s *Service) {
		s.progressListener = listener
	}
}

// WithTracing configures OpenTelemetry with the stdout exporter writing to
// outputFile, or stdout when empty.  The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry with a custom exporter
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
