// Package logging wraps log/slog so every component logs with the same
// service and version attributes.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// PINs, access codes, their hashes and bearer tokens are never logged.
// Log credential ids and credential types instead.
package logging
