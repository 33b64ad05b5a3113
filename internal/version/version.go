// Package version carries the build version reported by /health and
// the CLI.
package version

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/nyc-landmarks/vectordb/internal/version.Version=v1.4.0"
var Version = "dev"
