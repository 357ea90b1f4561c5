package model

import "context"

// Probe detects whether an operation already completed for a configuration.
// It is consulted once per pair when configurations are admitted.
type Probe interface {
	Detect(ctx context.Context, operation, config string) (bool, error)
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func(ctx context.Context, operation, config string) (bool, error)

func (f ProbeFunc) Detect(ctx context.Context, operation, config string) (bool, error) {
	return f(ctx, operation, config)
}

// CommandBuilder produces the launch specification of an (operation,
// configuration, slot) triple.  Operations it does not know must be rejected
// with ErrUnsupportedOperation.
type CommandBuilder interface {
	Build(operation, config string, slot int) (*Launch, error)
}

// CommandBuilderFunc adapts a function to CommandBuilder
type CommandBuilderFunc func(operation, config string, slot int) (*Launch, error)

func (f CommandBuilderFunc) Build(operation, config string, slot int) (*Launch, error) {
	return f(operation, config, slot)
}

// Orderer arranges the configurations eligible for an operation.  It must
// not retain or mutate anything besides the supplied slice.
type Orderer interface {
	Order(configs []string) []string
}

// OrdererFunc adapts a function to Orderer
type OrdererFunc func(configs []string) []string

func (f OrdererFunc) Order(configs []string) []string {
	return f(configs)
}

// NeverDone is a probe that reports nothing as completed.
var NeverDone = ProbeFunc(func(context.Context, string, string) (bool, error) { return false, nil })
