// Package deps reports whether the external binaries mediapost shells out to
// are installed.
package deps
