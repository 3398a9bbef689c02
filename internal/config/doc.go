// Package config loads, normalizes, and validates contractflow configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CONTRACTFLOW_API_TOKEN and the MinIO credentials. The Config type
// centralizes every knob the daemon and CLI need and is built once at startup,
// then passed explicitly to each component.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
