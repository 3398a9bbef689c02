// Package store persists contracts in SQLite and is the only component that
// writes contract state.
//
// Every write after creation goes through Update, which reads the current row,
// lets the caller mutate a copy, and persists it with a single conditional
// statement keyed on the row version. A lost race surfaces as
// services.ErrConflict; callers decide whether to retry.
//
// Listing is keyset paginated on (timestamp, id) with opaque cursors, and
// Iterate exposes the same walk as a lazy iter.Seq2 that can resume from any
// cursor.
package store
