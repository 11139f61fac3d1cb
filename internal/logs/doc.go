// Package logs reads the daemon log file for the CLI. It returns the last N
// lines, resumes from a byte offset, and optionally waits for new output, so
// `mediapost logs --follow` can poll without holding the file open.
package logs
