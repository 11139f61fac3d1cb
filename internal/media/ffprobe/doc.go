// Package ffprobe inspects media files with ffprobe and classifies them for
// the pipeline.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: duration, size, and kind for one path, with an ffmpeg decode
//     fallback when ffprobe cannot report a duration
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - Prober.Probe: the pipeline's media probe; failures wrap ErrProbe
package ffprobe
