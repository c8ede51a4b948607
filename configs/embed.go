// Package configs provides embedded configuration templates for
// corecache.
//
// Templates are embedded at build time via //go:embed so they ship with
// every distribution of the binary, not just source checkouts.
//
// Used by:
//   - cmd/corecache/cmd/config.go ("corecache config init") -> writes
//     UserConfigTemplate to ~/.config/corecache/config.yaml
//
// No command writes ProjectConfigTemplate; .corecache.yaml is created by
// hand.
//
// Configuration precedence (see internal/config.Load): hardcoded
// defaults, then user config, then project config, then CORECACHE_* env
// vars.
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration,
// written by "corecache config init".
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration
// kept at .corecache.yaml in a project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
