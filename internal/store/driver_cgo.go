//go:build sqlite_cgo

// Build with `-tags sqlite_cgo` on hosts where cgo is available and the
// WAL-mode write concurrency of the cgo sqlite3 driver is preferred over
// the pure Go driver's static-linking convenience. The teacher keeps both
// modernc.org/sqlite and github.com/mattn/go-sqlite3 in its go.mod for the
// same reason.
package store

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqlDriverName = "sqlite3"
