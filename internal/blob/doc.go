// Package blob stores uploaded contract documents and resolves the opaque
// "bucket/object" references kept on contract records.
//
// Two backends exist: a filesystem tree for single-host deployments and a
// MinIO/S3 bucket. Content is never removed when a contract is soft deleted.
package blob
