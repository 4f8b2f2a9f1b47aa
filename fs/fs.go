package appfs

import "embed"

// FS embeds the migrations and mail/template assets so that the API and
// admin binaries remain self-contained.
//
//go:embed migrations assets
var FS embed.FS
