// Package diarization produces speaker timelines for audio and maps
// transcript fragments onto them.
//
// The bundled implementation runs an external command that writes RTTM
// (for example a pyannote wrapper script). Speaker attribution picks the turn
// with the largest time overlap.
package diarization
