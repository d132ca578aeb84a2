// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics and debug introspection layer.
//
// Provides:
//   - TOML configuration loading, validation and a reloadable snapshot store
//   - Prometheus collectors for the reactor, endpoints and frame parsers
//   - Debug probe registration and state export
package control
