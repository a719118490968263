// Package migrations embeds the agent_configs/chat_messages schema
// migrations so the CLI bootstrap can apply them via golang-migrate's iofs
// source driver without shipping .sql files alongside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
