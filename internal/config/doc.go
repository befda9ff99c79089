// Package config loads the realtime daemon's YAML configuration.
//
// Values may reference environment variables as ${VAR}. Load parses the
// file as written, LoadWithDefaults fills optional fields, and
// LoadAndValidate additionally rejects incomplete configurations.
package config
