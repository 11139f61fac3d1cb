// Package notifications publishes pipeline outcomes to ntfy.
//
// When no topic is configured NewService returns a no-op, so callers never
// need to check whether notifications are enabled. Delivery failures are
// returned to the caller, which logs them; a failed notification never fails
// a pipeline run.
package notifications
