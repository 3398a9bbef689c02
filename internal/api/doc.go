// Package api defines the wire-format types shared by contractflowd and the
// contractflow CLI. It translates store and batch models into
// transport-friendly DTOs so neither side couples to internal types.
//
// # Key Types
//
// Contract: transport representation of a contract record, including the
// review decision once one exists.
//
// ReviewRequest: the fixed review payload. Unknown fields and missing required
// fields are rejected by DecodeReview.
//
// BatchDeleteResponse: per-id outcomes of a batch delete in request order.
//
// ErrorResponse: the error envelope every non-2xx response carries.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Enums (store.State, store.Verdict) are
// exposed as lowercase strings and timestamps as RFC3339 with milliseconds.
// Error codes are the services.Kind* names so clients can branch on
// conflict, already_decided and not_ready without parsing messages.
package api
