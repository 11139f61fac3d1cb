// Package services defines shared utilities consumed by the pipeline
// supervisor and the external integrations it drives.
//
// Key responsibilities:
//   - Context helpers that stamp media file IDs, stage names, lanes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the dispatcher
//     decide whether a failed run is retried or terminal.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
