// Package model contains the value types exchanged between the opflow
// scheduler, its workers and the caller-supplied capabilities.
//
// The scheduler never interprets a Launch; it asks a CommandBuilder to
// produce one and hands it to a worker.  Workers answer with exactly one
// terminal Report per launch, written into the shared status registry under
// the launch Key.
package model
