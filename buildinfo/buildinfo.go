package buildinfo

import "fmt"

// Set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("serialwsbridge %s (commit=%s, date=%s)", Version, Commit, Date)
}
