// Package migrations embeds the SQL schema applied by telecarectl.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
