// Package config loads, validates, and defaults the TOML configuration for
// meetiq. Paths are expanded (including ~) during Load so downstream code can
// treat every directory as absolute. A sample configuration is embedded and
// written by `meetiq config init`.
package config
