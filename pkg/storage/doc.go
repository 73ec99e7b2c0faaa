// Package storage provides the cleanup collaborator used after a rejected
// storage reservation: S3Cleaner for S3 and S3-compatible buckets and
// LocalCleaner for a local directory. Both satisfy quota.Cleaner.
package storage
