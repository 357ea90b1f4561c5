package model

import (
	"fmt"
	"time"
)

// Operation is one step every configuration passes through, in list order.
type Operation struct {
	Name string `json:"name" yaml:"name"`
	// MaxParallel caps the number of configurations running the operation at once
	MaxParallel int `json:"maxParallel" yaml:"maxParallel"`
	// Command is the launch template, see service/command
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Marker is the completion marker template, see service/probe
	Marker  string        `json:"marker,omitempty" yaml:"marker,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate checks the operation definition
func (o *Operation) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("operation name was empty")
	}
	if o.MaxParallel < 1 {
		return fmt.Errorf("operation %s: maxParallel must be >= 1, but had %d", o.Name, o.MaxParallel)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("operation %s: timeout must not be negative", o.Name)
	}
	return nil
}

// OperationNames returns operation names in list order
func OperationNames(operations []*Operation) []string {
	ret := make([]string, len(operations))
	for i, op := range operations {
		ret[i] = op.Name
	}
	return ret
}
