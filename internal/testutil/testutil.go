// Package testutil provides test utilities for GridCI:
//   - Miniredis helpers for unit tests (miniredis.go)
//   - Workflow fixture helpers (fixtures.go)
//
// The helpers do not require Docker and work with regular tests.
package testutil
