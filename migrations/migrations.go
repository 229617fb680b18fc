// Package migrations embeds the goose SQL migrations for the email queue.
package migrations

import "embed"

//go:embed *.sql
var MigrationsFS embed.FS
