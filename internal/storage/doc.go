// Package storage persists scheduler run history.
//
// Two drivers are available: "file" appends JSON Lines through an afero
// filesystem, "sqlite" writes to a SQLite database (pure Go driver).
// An empty driver or "none" disables storage.
package storage
