// Package allocator hosts the scheduler: the single goroutine that owns the
// status table.  On every tick it reconciles worker reports from the
// registry, orders the configurations waiting for each operation and hands
// free slots to them, launching one worker per assignment through the
// processor.
package allocator
