// Package daemon hosts the long-running contractflowd process: it owns the
// single-instance lock, starts the local OCR workers, resumes OCR jobs left in
// flight by a previous process, and serves the HTTP API.
//
// The HTTP surface is a chi router mounted under /api. Every route except the
// OCR callback requires the configured bearer token; the callback is
// authenticated by its payload checksum instead. Handlers translate domain
// errors into the api.ErrorResponse envelope via api.StatusForError so
// clients can tell conflict, already_decided and not_ready apart.
package daemon
