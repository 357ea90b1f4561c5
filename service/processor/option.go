package processor

import (
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
	"github.com/viant/opflow/service/executor"
	"github.com/viant/opflow/service/messaging"
)

// Option configures the processor
type Option func(*Service)

// WithRegistry sets the status registry workers report into
func WithRegistry(registry dao.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithMessageQueue sets the launch queue
func WithMessageQueue(queue messaging.Queue[model.Launch]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithExecutor sets the launch executor
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
