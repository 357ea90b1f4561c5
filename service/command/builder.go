// Package command builds launch specifications from per-operation command
// templates.
package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/viant/opflow/internal/idgen"
	"github.com/viant/opflow/model"
)

// Template describes how one operation is launched.  Command may reference
// ${operation}, ${config} and ${slot}.
type Template struct {
	Command string
	Timeout time.Duration
}

// Builder expands operation templates into launches
type Builder struct {
	templates map[string]Template
	host      string
	workdir   string
	env       map[string]string
}

// Ensure Builder implements model.CommandBuilder
var _ model.CommandBuilder = (*Builder)(nil)

// Option configures the builder
type Option func(*Builder)

// WithHost sets the host every launch runs on
func WithHost(host string) Option {
	return func(b *Builder) {
		b.host = host
	}
}

// WithWorkdir sets the launch working directory
func WithWorkdir(workdir string) Option {
	return func(b *Builder) {
		b.workdir = workdir
	}
}

// WithEnv sets extra launch environment variables
func WithEnv(env map[string]string) Option {
	return func(b *Builder) {
		b.env = env
	}
}

// Build returns the launch of operation for config on slot
func (b *Builder) Build(operation, config string, slot int) (*model.Launch, error) {
	template, ok := b.templates[operation]
	if !ok {
		return nil, model.NewUnsupportedOperationError(operation, config, slot)
	}
	launch := &model.Launch{
		ID:        idgen.New(),
		Operation: operation,
		Config:    config,
		Slot:      slot,
		Command:   Expand(template.Command, operation, config, slot),
		Host:      b.host,
		Workdir:   b.workdir,
		Timeout:   template.Timeout,
	}
	if len(b.env) > 0 {
		launch.Env = make(map[string]string, len(b.env))
		for k, v := range b.env {
			launch.Env[k] = Expand(v, operation, config, slot)
		}
	}
	return launch, nil
}

// Expand substitutes ${operation}, ${config} and ${slot} in template
func Expand(template, operation, config string, slot int) string {
	return strings.NewReplacer(
		"${operation}", operation,
		"${config}", config,
		"${slot}", strconv.Itoa(slot),
	).Replace(template)
}

// New creates a builder for the supplied operation templates
func New(templates map[string]Template, options ...Option) *Builder {
	ret := &Builder{templates: make(map[string]Template, len(templates))}
	for op, template := range templates {
		ret.templates[op] = template
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
