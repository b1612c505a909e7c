package config

// Default paths and import limits
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./tagnotes.db"

	// DefaultChunkSize is the number of records committed per transaction
	DefaultChunkSize = 500

	// DefaultMaxRecords is the largest bundle accepted by a single import
	DefaultMaxRecords = 50000
)
