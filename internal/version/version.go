// Package version holds build metadata set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/keshon/jukebox/internal/version.Version=v1.2.0"
package version

import "fmt"

var (
	AppName   = "Jukebox"
	Version   = "dev"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// String is the one-line banner logged on startup.
func String() string {
	return fmt.Sprintf("%s %s (built %s, %s)", AppName, Version, BuildDate, GoVersion)
}
