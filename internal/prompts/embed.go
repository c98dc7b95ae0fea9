// Package prompts provides externalized instruction templates with override support.
package prompts

import "embed"

//go:embed templates/*.md
var embeddedFS embed.FS
