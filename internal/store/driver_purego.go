//go:build !sqlite_cgo

package store

import (
	_ "modernc.org/sqlite" // pure Go SQLite driver, default build
)

const sqlDriverName = "sqlite"
