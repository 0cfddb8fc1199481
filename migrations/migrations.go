// Package migrations embeds the SQL schema for every supported database driver.
// Files live in one directory per driver and follow golang-migrate naming.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
