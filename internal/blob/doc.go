// Package blob abstracts chunk byte storage behind opaque references so the
// upload pipeline never depends on where captured audio lives. The
// filesystem backend is the production path; the in-memory backend serves
// tests and ephemeral captures.
package blob
