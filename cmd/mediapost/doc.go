// Command mediapost registers media files, runs the transcription and
// packaging pipelines, and inspects queue state.
//
// Commands that change state talk to the SQLite queue directly; a running
// mediapostd picks up queued jobs on its next poll. The transcribe and
// package commands run synchronously in the foreground unless --queue is
// passed.
package main
