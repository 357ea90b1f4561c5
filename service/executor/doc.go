// Package executor defines how a worker turns a launch specification into a
// terminal result.  Implementations run to natural completion or until the
// launch deadline expires.
package executor
