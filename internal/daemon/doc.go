// Package daemon coordinates the long-running mediapost process.
//
// It wraps the workflow dispatcher in a single lifecycle with flock-based
// locking so only one daemon drains a given queue database. Individual
// pipeline steps live in their own packages; the daemon only handles
// startup, shutdown, and status.
package daemon
