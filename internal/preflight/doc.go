// Package preflight provides readiness checks for the directories, binaries,
// and transcription API mediapost depends on.
//
// The daemon runs RunAll at startup and refuses to start when a directory
// check fails. The CLI "deps" command also calls CheckTranscriptionAPI, which
// contacts the remote backend and is therefore never run implicitly.
package preflight
