// Package env holds build-time metadata stamped in via -ldflags at release
// build time, e.g.:
//
//	go build -ldflags "-X github.com/tabfs/tabfs/internal/env.Version=v1.2.3"
package env

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)
