// Package capture moves chunk files produced by a recorder into the local
// recording store. It offers a one-shot directory import for finished
// sessions and an fsnotify-based watcher that imports chunks live as the
// recorder writes them, with a settle delay so partially written files are
// never picked up.
package capture
