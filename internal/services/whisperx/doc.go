// Package whisperx runs WhisperX through uvx and reads back its segment JSON.
//
// Configuration options (model, CUDA) are passed via Config. The service
// writes WhisperX output beside the requested output directory and returns
// the timed segments, including speaker labels when WhisperX emits them.
package whisperx
