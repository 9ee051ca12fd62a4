// Package appfs embeds the files the binaries need at runtime:
// database migrations (one directory per SQL dialect), email templates,
// the default follow-up pipeline and the common-password list.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS

const (
	EmailTemplatesDir   = "assets/templates/email"
	PipelineFile        = "assets/pipeline.yaml"
	CommonPasswordsFile = "assets/common-passwords.txt.gz"
)

// MigrationsDir returns the migrations directory of the given database engine.
func MigrationsDir(engine string) string {
	if engine == "sqlite" {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}
