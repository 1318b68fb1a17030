// Package services defines shared utilities consumed by the pipeline phases and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the retry executor
//     and job finalization classify failures consistently (retryable vs fatal).
//
// Use these helpers when wiring new phase logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
