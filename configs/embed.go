// Package configs provides embedded configuration templates for vectorizer.
//
// How Configuration Templates Work:
//
// Templates are embedded at build time using Go's //go:embed directive.
// This ensures they are available in ALL distributions:
//   - Source builds (go install)
//   - Binary releases
//   - Homebrew installations
//
// The templates are used by:
//   - cmd/vectorizer/cmd/init.go → creates .vectorizer.yaml
//   - cmd/vectorizer/cmd/config.go → creates user config at ~/.config/vectorizer/config.yaml
//
// Template files:
//   - project-config.example.yaml: Project-specific settings (collections, search, file watcher)
//   - user-config.example.yaml: Machine-specific settings (data dir, server, embeddings)
//
// Configuration Hierarchy (see internal/config/config.go Load()):
//   1. Hardcoded defaults (internal/config/config.go NewConfig())
//   2. User config (~/.config/vectorizer/config.yaml)
//   3. Project config (.vectorizer.yaml)
//   4. Environment variables (VECTORIZER_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
// Changes will be embedded in the next build.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `vectorizer config init` at ~/.config/vectorizer/config.yaml
// Contains: Machine-specific settings like data_dir, server bind address, embeddings.
// Use case: Settings that apply to every collection run by this user.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `vectorizer init` at .vectorizer.yaml in the project root
// Contains: Project-specific settings like collection defaults, search weights,
// file-watcher ingestion mapping.
// Use case: Settings that are version-controlled with the project.
//
// See: configs/project-config.example.yaml for the full template.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
