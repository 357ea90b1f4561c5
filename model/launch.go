package model

import (
	"fmt"
	"time"
)

// NoSlot marks an (operation, configuration) pair that is not running.
const NoSlot = -1

// Key identifies an (operation, configuration) pair.
type Key struct {
	Operation string `json:"operation" yaml:"operation"`
	Config    string `json:"config" yaml:"config"`
}

func (k Key) String() string {
	return k.Operation + "/" + k.Config
}

// Launch is the launch specification of a single worker.
type Launch struct {
	ID        string            `json:"id,omitempty"`
	Operation string            `json:"operation"`
	Config    string            `json:"config"`
	Slot      int               `json:"slot"`
	Command   string            `json:"command,omitempty"`
	Host      string            `json:"host,omitempty"`
	Workdir   string            `json:"workdir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
}

// Key returns the registry key of the launch.
func (l *Launch) Key() Key {
	return Key{Operation: l.Operation, Config: l.Config}
}

func (l *Launch) String() string {
	return fmt.Sprintf("operation %s on configuration %s (slot %d)", l.Operation, l.Config, l.Slot)
}
