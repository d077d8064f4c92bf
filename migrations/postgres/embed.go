// Package migrations embebe los SQL de las dos bases que maneja el relay.
package migrations

import "embed"

// FS contiene directory/*.sql (registro central) y backend/*.sql (tenants con driver postgres).
//
//go:embed directory/*.sql backend/*.sql
var FS embed.FS

const (
	DirectoryDir = "directory"
	BackendDir   = "backend"
)
