// Package hls produces adaptive streaming packages for video uploads.
//
// A Detector picks the H.264 encoder once per process (vendor hardware in a
// fixed preference order, libx264 otherwise). The Transcoder renders one
// ladder rung into fixed-length MPEG-TS segments plus a variant playlist,
// falling back to software when a hardware encode fails. The Packager runs
// every rung through a bounded worker pool inside a private staging
// directory, enforces the minimum-quality gate, writes the master playlist,
// and publishes the package with a single rename.
package hls
