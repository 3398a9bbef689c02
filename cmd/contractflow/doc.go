// Command contractflow is the command-line client for contractflowd.
//
// It uploads contract documents, inspects and paginates contracts, drives
// manual lifecycle steps (OCR, review queueing), records review decisions,
// deletes single contracts or batches, and starts or stops the daemon. Every
// read command accepts --json for machine-readable output.
package main
