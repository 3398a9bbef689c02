// Package batch runs set-oriented contract operations.
//
// BatchDelete fans per-id deletions out over a bounded worker pool. Every
// distinct id gets exactly one entry in the report; a failure on one id never
// affects the others, and the call itself only fails for malformed input.
package batch
