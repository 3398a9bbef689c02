// Package preflight provides readiness checks for the filesystem paths and
// external services contractflowd depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure. A failing
//     data directory aborts startup.
//   - The CLI "contractflow status" command prints the same results next to
//     the daemon's own status.
//
// Each check is gated by its config selection: the OCR service check only runs
// for the remote backend and the blob directory check only for filesystem
// storage.
package preflight
