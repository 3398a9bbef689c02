// Package lifecycle owns contract state transitions.
//
// The Engine validates every transition against the state graph and writes
// through the store's version-checked Update, retrying lost races a bounded
// number of times. It mints OCR job identifiers, hands jobs to the OCR
// gateway and applies the results that come back. Review decisions are
// computed by ApplyDecision and written by the review coordinator.
package lifecycle
