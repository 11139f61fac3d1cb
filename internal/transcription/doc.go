// Package transcription turns normalized audio into persisted,
// speaker-attributed transcript segments.
//
// Components:
//   - Backend: one provider (hosted OpenAI, Lemonfox, local WhisperX),
//     chosen once from configuration by NewBackend
//   - Client: bounded exponential backoff with jitter around a Backend,
//     with provider-specific rate-limit waits and immediate abort on quota or
//     authentication failures
//   - Merger: greedy single-pass consolidation of fragments into
//     speaker-coherent, duration-bounded segments
//   - Orchestrator: probe, normalize, chunk, diarize, transcribe, merge,
//     and replace the stored transcript for one media file
//
// Expected remote failures are returned as values (RemoteError) and retried;
// chunk-level failures are tolerated unless every chunk fails.
package transcription
