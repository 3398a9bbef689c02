// Package ocr connects contracts to a text extraction collaborator.
//
// The Gateway hands jobs to a Collaborator and routes results back into the
// lifecycle through an Applier. Job identifiers are minted by the lifecycle
// when a contract enters OCR, so a result is always resolved through the job
// it answers; results for jobs that no longer own their contract are logged
// and dropped.
//
// LocalExtractor runs a bounded in-process worker pool for text-bearing
// documents. RemoteExtractor drives a MinerU-style extraction service that
// reports back through an authenticated callback.
package ocr
