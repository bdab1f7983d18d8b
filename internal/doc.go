// Package internal contains the core implementation packages for
// prologbook.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing all
// the core functionality for the prologbook CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - types: shared data model (entity kinds, directives, references)
//   - registry: build-scoped identity registry with uniqueness rules
//   - resolver: inline/file/empty content resolution
//   - tracker: file-to-page dependency edges for incremental rebuilds
//   - numbering: exercise/solution sequence assignment
//   - refs: cross-document reference rendering
//   - compose: composite .pl artifact composition and emission
//   - page: YAML page manifest loading
//   - engine: two-phase build orchestration
//   - watcher: file system monitoring with debouncing
//   - server: WebSocket live-reload notification
//   - config, errors, logging, version: ambient infrastructure
package internal
