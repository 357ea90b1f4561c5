package allocator

import (
	"github.com/viant/opflow/model"
	"github.com/viant/opflow/service/dao"
)

// Option configures the scheduler
type Option func(*Service)

// WithConfig sets the scheduler configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithRegistry sets the status registry
func WithRegistry(registry dao.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithCommandBuilder sets the launch builder
func WithCommandBuilder(builder model.CommandBuilder) Option {
	return func(s *Service) {
		s.builder = builder
	}
}

// WithOrderer sets the orderer applied to eligible configurations
func WithOrderer(orderer model.Orderer) Option {
	return func(s *Service) {
		s.orderer = orderer
	}
}

// WithSubmitter sets the component launching workers
func WithSubmitter(submitter Submitter) Option {
	return func(s *Service) {
		s.submitter = submitter
	}
}

// WithListener adds a listener of configurations leaving the table
func WithListener(listener Listener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listener)
	}
}

// WithUndelivered sets the source of terminal reports the registry rejected
func WithUndelivered(source UndeliveredSource) Option {
	return func(s *Service) {
		s.undeliveredSource = source
	}
}
