// Package chunking splits audio that exceeds a transcription backend's
// payload limit into size-bounded pieces.
//
// Boundaries are spaced at a target duration derived from the observed
// bytes-per-second rate and snapped back to the latest silence midpoint inside
// a window before each raw cut. Pieces that still exceed the limit after
// extraction are re-planned, bounded by a hard cap on total extractions.
package chunking
