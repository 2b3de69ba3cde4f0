// Package blob exposes the archive blob storage abstraction. Call sites
// depend on the Store interface here; the concrete drivers live under
// internal/infra/blob and are only wired through this package.
package blob

import "applycore/internal/blob/core"

// Re-exported aliases so higher layers never import infra packages directly.
type (
	// Driver identifies a concrete blob storage backend implementation.
	Driver = core.Driver
	// PutOptions specifies optional parameters for Put.
	PutOptions = core.PutOptions
	// Info describes a stored blob.
	Info = core.Info
	// Store provides a thin S3-like abstraction over archive storage.
	Store = core.Store
)

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 = core.DriverS3
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory = core.DriverMemory
)
