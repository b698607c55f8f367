// Package textutil provides text cleanup helpers for meeting subjects and
// filesystem-safe path segments.
package textutil
