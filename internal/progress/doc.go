// Package progress carries tick and booking milestones from the worker to
// pluggable sinks. Events are batched on a background goroutine so the
// polling loop never waits on logging or metrics.
package progress
