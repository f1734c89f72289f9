// Package configs embeds the workspace configuration template written by
// `pkms config --init`.
package configs

import _ "embed"

// WorkspaceTemplate is a commented pkms.yaml equivalent to the built-in
// defaults, with example collections left commented out.
//
//go:embed pkms.example.yaml
var WorkspaceTemplate string
