// Package logging wraps log/slog with the handlers and helpers used across
// meetiq: a console handler that renders component-prefixed single-line
// output, a JSON handler for machine consumption, attr helpers, and
// standardized field keys so recording/phase/job identifiers are searchable
// in every record.
package logging
