// Package services defines shared utilities consumed by the lifecycle engine,
// the review and batch components, and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp contract IDs and correlation identifiers for
//     logging and tracing.
//   - The workflow error taxonomy (not found, invalid state, already decided,
//     conflict, not ready, stale result, validation) plus the Wrap helper that
//     adds component context while keeping the marker matchable with
//     errors.Is.
//
// Use these helpers when wiring new workflow logic so error handling and
// observability stay uniform across components.
package services
