// Package config loads, normalizes, and validates mediapost configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and LEMONFOX_API_KEY. The Config type centralizes every knob
// the daemon and CLI need: media and work directories, the transcription
// backend, chunking and merge thresholds, and the streaming variant ladder.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical language tags, and clear validation errors.
package config
