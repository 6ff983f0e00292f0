package snapshot

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("snapshot_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("snapshot_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("snapshot_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("snapshot_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("snapshot_transaction_failed")

	// Storage Errors
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
	ErrStorageQuery  = errors.ErrorCode("snapshot_query_failed")
	ErrStoreClosed   = errors.ErrorCode("snapshot_store_closed")
	ErrInvalidMetric = errors.ErrorCode("snapshot_invalid_metric")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "Invalid snapshot database path",
		ErrSchemaInitFailed:       "Failed to initialize snapshot schema",
		ErrSchemaValidationFailed: "Failed to validate snapshot schema",
		ErrSchemaMigrationFailed:  "Failed to migrate snapshot schema",
		ErrTransactionFailed:      "Snapshot transaction failed",
		ErrStorageQuery:           "Failed to query snapshot",
		ErrStoreClosed:            "Snapshot store is closed",
		ErrInvalidMetric:          "Snapshot observer requires a metric key",
	})
}

// phaseError is attached as data to storage failures.
type phaseError struct {
	Phase string
	Path  string
	Error string
}
