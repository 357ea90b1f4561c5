// Package processor hosts the workers that execute launches.  Every worker
// consumes launch messages published by the allocator, runs them through the
// executor and writes exactly one terminal report per launch into the status
// registry, where the allocator picks it up on its next tick.
package processor
