package allocator

import (
	"github.com/viant/opflow/runtime/status"
)

// Slots describes the occupancy of an operation's slots
type Slots struct {
	// Running maps an occupied slot to its configuration
	Running map[int]string
	// Free lists unoccupied slots in ascending order
	Free []int
}

// Occupancy derives the slot occupancy of op from the table.  Two
// configurations on one slot, or a slot outside [0, maxParallel), is a
// consistency error.
func Occupancy(table *status.Table, op string, maxParallel int) (*Slots, error) {
	ret := &Slots{Running: make(map[int]string)}
	for _, assignment := range table.Running(op) {
		if assignment.Slot >= maxParallel {
			return nil, status.NewConsistencyError(op, assignment.Config, assignment.Slot, "slot outside of max parallel %d", maxParallel)
		}
		if holder, ok := ret.Running[assignment.Slot]; ok {
			return nil, status.NewConsistencyError(op, assignment.Config, assignment.Slot, "slot already held by configuration %s", holder)
		}
		ret.Running[assignment.Slot] = assignment.Config
	}
	for slot := 0; slot < maxParallel; slot++ {
		if _, ok := ret.Running[slot]; !ok {
			ret.Free = append(ret.Free, slot)
		}
	}
	return ret, nil
}
