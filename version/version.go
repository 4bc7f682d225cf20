// Package version holds build information for sqlpool, injected with
// ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/sqlpool/version.Version=1.0.0 \
//	    -X github.com/go-i2p/sqlpool/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Development builds report "dev".
package version

// Version is the release version.
var Version = "dev"

// GitCommit is the short commit hash the binary was built from.
var GitCommit = ""

// BuildTime is the UTC build timestamp.
var BuildTime = ""

// Full returns Version followed by the commit and build time when known,
// e.g. "1.0.0-abc1234 (2026-01-29T12:00:00Z)".
func Full() string {
	v := Version
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}
