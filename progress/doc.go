// Package progress keeps aggregated configuration counters for a run
// (submitted, completed, failed out, running, queued).  The tracker travels in
// the context so that any component holding the context can update it.
package progress
