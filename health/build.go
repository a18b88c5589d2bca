package health

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

// getBuildInfo renders "<version>-<commit> (<date>)". BUILD_COMMIT and
// BUILD_TIME override what the Go toolchain stamped into the binary.
func getBuildInfo(version string) string {
	commit := os.Getenv("BUILD_COMMIT")
	var built time.Time

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
				}
			case "vcs.time":
				built, _ = time.Parse(time.RFC3339, setting.Value)
			}
		}
	}

	if v := os.Getenv("BUILD_TIME"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			built = t
		}
	}

	if commit == "" {
		commit = "unknown"
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}

	date := "unknown"
	if !built.IsZero() {
		date = built.Format("2006-01-02")
	}

	return fmt.Sprintf("%s-%s (%s, %s)", version, commit, date, runtime.Version())
}
