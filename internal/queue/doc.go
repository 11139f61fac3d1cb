// Package queue persists media files, their transcripts, and the dispatcher's
// job queue in SQLite.
//
// The Store is the persistence collaborator for the pipeline: it hands out
// the per-lane single-run lock (Claim), records status transitions, replaces
// transcript segments transactionally, and records published playlist paths.
// It also backs the dispatcher with a small durable job table so runs survive
// daemon restarts and are retried with a bounded count.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
