// Package workflow moves media files through the transcription and packaging
// lanes.
//
// The Supervisor runs one lane for one file: it claims the file, probes it,
// invokes the transcription orchestrator or the HLS packager, and records the
// outcome on the media row. The Dispatcher owns the durable job queue. Each
// lane gets its own worker pool that claims due jobs, keeps them alive with
// heartbeats, and decides between completion, retry, and permanent failure
// from the error classification in the services package.
//
// pipeline.go wires both from configuration and registers new files.
package workflow
