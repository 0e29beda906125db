// Package web holds the editor page, its HTML fragments and static assets.
package web

import "embed"

//go:embed templates static
var FS embed.FS
