// Package testsupport centralizes helpers for constructing configs, stores,
// recordings, and blob fixtures in tests.
package testsupport
