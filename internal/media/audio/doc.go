// Package audio wraps the ffmpeg invocations the transcription pipeline needs:
// normalizing uploads to compact mono speech audio, detecting silence, and
// cutting time ranges into standalone files.
//
// All output is mono 16 kHz MP3 at 64 kbit/s so that payload size tracks
// duration regardless of the source container.
package audio
